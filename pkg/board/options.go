package board

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/adaboard/internal/service"
)

// Options configure a Board. Zero fields take the values of their default tags.
type Options struct {
	// HistoryCapacity is the number of entries kept per sensor.
	HistoryCapacity int `default:"1000"`

	// History lists the sensors whose values are recorded; nil selects DefaultHistoryKinds.
	History []service.Kind

	// KeepRawOrientation disables the motion data flip applied on boards
	// mounted upside down.
	KeepRawOrientation bool

	// Light sequence defaults used when SequenceOptions leaves a field zero.
	AnimationFPS        int     `default:"10"`
	AnimationSpeed      float64 `default:"0.3"`
	AnimationBrightness float64 `default:"0.25"`
	FlashSpeed          float64 `default:"1"`

	// Catalog overrides the service descriptors; nil uses service.DefaultCatalog.
	Catalog *service.Catalog
	// Now is the clock of history timestamps.
	Now func() time.Time
}

// DefaultHistoryKinds are recorded unless Options.History says otherwise.
var DefaultHistoryKinds = []service.Kind{
	service.Light,
	service.Temperature,
	service.Humidity,
	service.Pressure,
	service.Sound,
}

func (o *Options) applyDefaults() {
	defaults.SetDefaults(o)
	if o.History == nil {
		o.History = DefaultHistoryKinds
	}
	if o.Catalog == nil {
		o.Catalog = service.DefaultCatalog()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func (o *Options) recordsHistory(kind service.Kind) bool {
	for _, k := range o.History {
		if k == kind {
			return true
		}
	}
	return false
}
