package service

import (
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind names one vendor service.
type Kind string

const (
	Temperature   Kind = "temperature"
	Accelerometer Kind = "accelerometer"
	Light         Kind = "light"
	Gyroscope     Kind = "gyroscope"
	Magnetometer  Kind = "magnetometer"
	Buttons       Kind = "buttons"
	Humidity      Kind = "humidity"
	Pressure      Kind = "pressure"
	Neopixels     Kind = "neopixels"
	Color         Kind = "color"
	Sound         Kind = "sound"
	ToneGenerator Kind = "tone"
	Quaternion    Kind = "quaternion"
)

// Shared characteristics present in every Adafruit sensor service.
const (
	PeriodCharUUID  = "ADAF0001-C332-42A8-93BD-25E905756CB8"
	VersionCharUUID = "ADAF0002-C332-42A8-93BD-25E905756CB8"

	SoundChannelsCharUUID = "ADAF0B02-C332-42A8-93BD-25E905756CB8"

	DefaultVersion int32 = 1
)

// Period is a sample period in milliseconds as written to the period characteristic.
type Period int32

const (
	// PeriodDisabled stops periodic measurements.
	PeriodDisabled Period = -1
	// PeriodOnChange makes the accessory notify only when the value changes.
	PeriodOnChange Period = 0
)

// PeriodOf converts a duration to a Period; negative durations disable measurements.
func PeriodOf(d time.Duration) Period {
	if d < 0 {
		return PeriodDisabled
	}
	return Period(d.Milliseconds())
}

func (p Period) String() string {
	switch p {
	case PeriodDisabled:
		return "disabled"
	case PeriodOnChange:
		return "on-change"
	default:
		return fmt.Sprintf("%dms", int32(p))
	}
}

// periodPtr is a convenience for descriptor literals.
func periodPtr(p Period) *Period { return &p }

// VersionPolicy decides what a firmware version mismatch means.
type VersionPolicy int

const (
	// VersionAdvisory logs a mismatch and continues.
	VersionAdvisory VersionPolicy = iota
	// VersionRequired rejects a mismatch with ErrUnknownVersion.
	VersionRequired
)

// Descriptor is the static description of one vendor service.
type Descriptor struct {
	Kind            Kind
	ServiceUUID     string
	MainCharUUID    string
	VersionCharUUID string
	PeriodCharUUID  string // empty for services without a sample period

	ExpectedVersion int32
	VersionPolicy   VersionPolicy

	// DefaultPeriod is written on enable when the caller gives no period; nil writes nothing.
	DefaultPeriod *Period

	// Notifies is false for command-only services such as pixels and tone.
	Notifies bool
}

func adafruitUUID(short string) string {
	return "ADAF" + short + "-C332-42A8-93BD-25E905756CB8"
}

func sensor(kind Kind, short string, policy VersionPolicy, period Period) Descriptor {
	return Descriptor{
		Kind:            kind,
		ServiceUUID:     adafruitUUID(short + "00"),
		MainCharUUID:    adafruitUUID(short + "01"),
		VersionCharUUID: VersionCharUUID,
		PeriodCharUUID:  PeriodCharUUID,
		ExpectedVersion: DefaultVersion,
		VersionPolicy:   policy,
		DefaultPeriod:   periodPtr(period),
		Notifies:        true,
	}
}

const defaultSamplePeriod Period = 100

// Catalog is the ordered set of known service descriptors.
type Catalog struct {
	m *orderedmap.OrderedMap[Kind, Descriptor]
}

// NewCatalog builds a catalog from descriptors, keeping their order.
func NewCatalog(descriptors ...Descriptor) *Catalog {
	c := &Catalog{m: orderedmap.New[Kind, Descriptor](len(descriptors))}
	for _, d := range descriptors {
		c.m.Set(d.Kind, d)
	}
	return c
}

// DefaultCatalog returns the descriptors of every Adafruit vendor service.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		sensor(Temperature, "01", VersionRequired, defaultSamplePeriod),
		sensor(Accelerometer, "02", VersionRequired, defaultSamplePeriod),
		sensor(Light, "03", VersionRequired, defaultSamplePeriod),
		sensor(Gyroscope, "04", VersionRequired, defaultSamplePeriod),
		sensor(Magnetometer, "05", VersionRequired, defaultSamplePeriod),
		sensor(Buttons, "06", VersionRequired, PeriodOnChange),
		sensor(Humidity, "07", VersionRequired, defaultSamplePeriod),
		sensor(Pressure, "08", VersionRequired, defaultSamplePeriod),
		Descriptor{
			Kind:            Neopixels,
			ServiceUUID:     adafruitUUID("0900"),
			MainCharUUID:    adafruitUUID("0903"),
			VersionCharUUID: VersionCharUUID,
			ExpectedVersion: DefaultVersion,
			VersionPolicy:   VersionRequired,
		},
		sensor(Color, "0A", VersionRequired, defaultSamplePeriod),
		sensor(Sound, "0B", VersionRequired, defaultSamplePeriod),
		Descriptor{
			Kind:            ToneGenerator,
			ServiceUUID:     adafruitUUID("0C00"),
			MainCharUUID:    adafruitUUID("0C01"),
			VersionCharUUID: VersionCharUUID,
			ExpectedVersion: DefaultVersion,
			VersionPolicy:   VersionRequired,
		},
		sensor(Quaternion, "0D", VersionRequired, defaultSamplePeriod),
	)
}

// Get returns the descriptor of kind.
func (c *Catalog) Get(kind Kind) (Descriptor, bool) {
	return c.m.Get(kind)
}

// MustGet returns the descriptor of kind and panics when it is unknown.
func (c *Catalog) MustGet(kind Kind) Descriptor {
	d, ok := c.m.Get(kind)
	if !ok {
		panic(fmt.Sprintf("service: unknown kind %q", kind))
	}
	return d
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int { return c.m.Len() }

// Kinds returns every kind in declaration order.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		kinds = append(kinds, pair.Key)
	}
	return kinds
}

// ParseKind resolves a kind by name.
func (c *Catalog) ParseKind(name string) (Kind, error) {
	if _, ok := c.m.Get(Kind(name)); ok {
		return Kind(name), nil
	}
	return "", fmt.Errorf("unknown service %q (known: %v)", name, c.Kinds())
}

// ServiceUUIDs returns the service UUIDs of the given kinds (all kinds when none given).
func (c *Catalog) ServiceUUIDs(kinds ...Kind) []string {
	if len(kinds) == 0 {
		kinds = c.Kinds()
	}
	uuids := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if d, ok := c.m.Get(k); ok {
			uuids = append(uuids, d.ServiceUUID)
		}
	}
	return uuids
}
