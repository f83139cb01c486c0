package testutils

import (
	"context"
	"sync"

	"github.com/srg/blecon/internal/device"
)

type advertisement struct {
	name        string
	address     string
	rssi        int
	connectable bool
}

func (a *advertisement) LocalName() string { return a.name }
func (a *advertisement) Addr() string      { return a.address }
func (a *advertisement) RSSI() int         { return a.rssi }
func (a *advertisement) Connectable() bool { return a.connectable }

// AdvertisementBuilder builds device.Advertisement values for scanner tests.
type AdvertisementBuilder struct {
	adv advertisement
}

// NewAdvertisementBuilder creates a connectable advertisement builder.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: advertisement{connectable: true}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithConnectable sets the connectable flag.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns the advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	return &adv
}

// FakeScanningDevice replays advertisements to the scan handler and then
// blocks until the scan context ends, like a real adapter.
type FakeScanningDevice struct {
	mu    sync.Mutex
	ads   []device.Advertisement
	err   error
	scans int
}

// NewFakeScanningDevice creates a scanning device that reports ads.
func NewFakeScanningDevice(ads ...device.Advertisement) *FakeScanningDevice {
	return &FakeScanningDevice{ads: ads}
}

// FailWith makes subsequent scans fail immediately with err.
func (f *FakeScanningDevice) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Scans returns how many scans were started.
func (f *FakeScanningDevice) Scans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}

func (f *FakeScanningDevice) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	f.mu.Lock()
	f.scans++
	ads, err := f.ads, f.err
	f.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range ads {
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}
