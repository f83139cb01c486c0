package gatt

import "strconv"

// Named is anything listed by name in the console.
type Named interface {
	Name() string
}

// Find looks token up in items. "#N" selects the item at position N when N
// is a valid index; otherwise the first item whose name equals token exactly
// is returned. There is no partial matching.
func Find[T Named](items []T, token string) (item T, index int, ok bool) {
	if n, isIndex := parseIndex(token); isIndex && n < len(items) {
		return items[n], n, true
	}
	for i, it := range items {
		if it.Name() == token {
			return it, i, true
		}
	}
	var zero T
	return zero, -1, false
}

// Resolve returns the canonical name token refers to.
func Resolve[T Named](items []T, token string) (string, bool) {
	item, _, ok := Find(items, token)
	if !ok {
		return "", false
	}
	return item.Name(), true
}

// parseIndex accepts "#" followed by one or more decimal digits.
func parseIndex(token string) (int, bool) {
	if len(token) < 2 || token[0] != '#' {
		return 0, false
	}
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(token[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatIndex renders the canonical "#NN" form of an index.
func FormatIndex(i int) string {
	return "#" + leftPad(strconv.Itoa(i))
}

func leftPad(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
