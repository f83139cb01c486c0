package device

import "strings"

// Properties is the characteristic property bit set, using the GATT
// characteristic declaration bit values.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropAuthenticatedSignedWrites
	PropExtendedProperties
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "Broadcast"},
	{PropRead, "Read"},
	{PropWriteWithoutResponse, "WriteWithoutResponse"},
	{PropWrite, "Write"},
	{PropNotify, "Notify"},
	{PropIndicate, "Indicate"},
	{PropAuthenticatedSignedWrites, "AuthenticatedSignedWrites"},
	{PropExtendedProperties, "ExtendedProperties"},
}

// Has reports whether all bits of p are set.
func (ps Properties) Has(p Properties) bool {
	return ps&p == p
}

// CanNotify reports whether the characteristic supports notify or indicate.
func (ps Properties) CanNotify() bool {
	return ps&(PropNotify|PropIndicate) != 0
}

// String renders the set as a comma separated list, e.g. "Read, Notify".
func (ps Properties) String() string {
	if ps == 0 {
		return "None"
	}
	names := make([]string, 0, len(propertyNames))
	for _, p := range propertyNames {
		if ps.Has(p.prop) {
			names = append(names, p.name)
		}
	}
	return strings.Join(names, ", ")
}
