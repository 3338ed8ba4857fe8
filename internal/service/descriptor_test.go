package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.Equal(t, 13, c.Len())

	kinds := c.Kinds()
	assert.Equal(t, Temperature, kinds[0])
	assert.Equal(t, Quaternion, kinds[len(kinds)-1])

	accel := c.MustGet(Accelerometer)
	assert.Equal(t, "ADAF0200-C332-42A8-93BD-25E905756CB8", accel.ServiceUUID)
	assert.Equal(t, "ADAF0201-C332-42A8-93BD-25E905756CB8", accel.MainCharUUID)
	assert.Equal(t, VersionRequired, accel.VersionPolicy)
	assert.True(t, accel.Notifies)

	assert.Equal(t, VersionRequired, c.MustGet(Temperature).VersionPolicy)
	assert.Equal(t, VersionRequired, c.MustGet(Light).VersionPolicy)
	assert.Equal(t, PeriodOnChange, *c.MustGet(Buttons).DefaultPeriod)

	for _, k := range []Kind{Neopixels, ToneGenerator} {
		d := c.MustGet(k)
		assert.False(t, d.Notifies, k)
		assert.Empty(t, d.PeriodCharUUID, k)
	}
	assert.Equal(t, "ADAF0903-C332-42A8-93BD-25E905756CB8", c.MustGet(Neopixels).MainCharUUID)
}

func TestCatalog_ParseKindAndUUIDs(t *testing.T) {
	c := DefaultCatalog()

	k, err := c.ParseKind("tone")
	require.NoError(t, err)
	assert.Equal(t, ToneGenerator, k)

	_, err = c.ParseKind("barometer")
	assert.ErrorContains(t, err, `unknown service "barometer"`)

	assert.Equal(t, []string{
		"ADAF0300-C332-42A8-93BD-25E905756CB8",
		"ADAF0B00-C332-42A8-93BD-25E905756CB8",
	}, c.ServiceUUIDs(Light, Sound))
	assert.Len(t, c.ServiceUUIDs(), 13)

	assert.Panics(t, func() { c.MustGet("nope") })
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, Period(250), PeriodOf(250*time.Millisecond))
	assert.Equal(t, PeriodOnChange, PeriodOf(0))
	assert.Equal(t, PeriodDisabled, PeriodOf(-time.Second))

	assert.Equal(t, "disabled", PeriodDisabled.String())
	assert.Equal(t, "on-change", PeriodOnChange.String())
	assert.Equal(t, "100ms", Period(100).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "enabled", Enabled.String())
	assert.Equal(t, "failed", Failed.String())
}
