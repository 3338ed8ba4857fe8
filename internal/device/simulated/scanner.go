package simulated

import (
	"context"

	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/service"
)

// RSSI reported for every simulated advertisement.
const RSSI = -42

// Scanner advertises a fixed set of simulated accessories once per scan.
type Scanner struct {
	Accessories []*Accessory
}

var _ device.ScanningDevice = (*Scanner)(nil)

func (s *Scanner) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	for _, a := range s.Accessories {
		if err := ctx.Err(); err != nil {
			return err
		}
		handler(advertisement{a})
	}
	return nil
}

type advertisement struct{ a *Accessory }

func (adv advertisement) LocalName() string        { return adv.a.Name() }
func (adv advertisement) ManufacturerData() []byte { return adv.a.ManufacturerData() }
func (adv advertisement) Connectable() bool        { return true }
func (adv advertisement) RSSI() int                { return RSSI }
func (adv advertisement) Addr() string             { return adv.a.ID() }

func (adv advertisement) Services() []string {
	// boards advertise only their primary vendor service
	return []string{service.DefaultCatalog().MustGet(service.Temperature).ServiceUUID}
}
