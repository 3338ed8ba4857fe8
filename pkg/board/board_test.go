package board

import (
	"context"
	"testing"
	"time"

	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/device/simulated"
	"github.com/srg/adaboard/internal/neopixel"
	"github.com/srg/adaboard/internal/sensor"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const waitFor = 2 * time.Second

type BoardTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	ctx    context.Context
	cancel context.CancelFunc
	acc    *simulated.Accessory
	board  *Board
}

func (s *BoardTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
}

func (s *BoardTestSuite) TearDownTest() {
	if s.board != nil {
		s.board.Teardown()
	}
	if s.acc != nil {
		s.acc.Disconnect()
	}
	s.cancel()
}

// attach connects a simulated accessory and sets up kinds.
func (s *BoardTestSuite) attach(accOpts simulated.Options, opts Options, kinds ...service.Kind) *SetupReport {
	s.acc = simulated.New(accOpts, testutils.NewSilentLogger())
	s.board = New(s.helper.Logger, opts)
	report, err := s.board.Setup(s.ctx, s.acc, kinds...)
	s.Require().NoError(err)
	return report
}

func (s *BoardTestSuite) lastPixelWrite() []byte {
	writes := s.acc.Writes(service.Neopixels)
	if len(writes) == 0 {
		return nil
	}
	return writes[len(writes)-1].Data
}

func (s *BoardTestSuite) offPayload() []byte {
	return neopixel.EncodePixels(0, true, neopixel.Fill(10, neopixel.Off))
}

func (s *BoardTestSuite) TestSetup_ReportsEveryService() {
	report := s.attach(simulated.Options{}, Options{}, service.Temperature, service.Buttons, service.Neopixels)

	s.Equal(CircuitPlaygroundBluefruit, report.Model)
	s.Equal([]service.Kind{service.Temperature, service.Buttons, service.Neopixels}, report.Enabled())
	s.Empty(report.Failed())
	s.NoError(report.Err())

	s.True(s.board.Temperature().IsEnabled())
	s.True(s.board.Buttons().IsEnabled())
	svc, ok := s.board.Service(service.Neopixels)
	s.Require().True(ok)
	s.True(svc.IsEnabled())
	s.Equal(10, s.board.NeopixelPixelCount())
}

func (s *BoardTestSuite) TestSetup_PartialFailureIsTolerated() {
	report := s.attach(
		simulated.Options{Services: []service.Kind{service.Temperature}},
		Options{},
		service.Temperature, service.Humidity,
	)

	s.Equal([]service.Kind{service.Temperature}, report.Enabled())
	s.Equal([]service.Kind{service.Humidity}, report.Failed())
	s.ErrorIs(report.Err(), service.ErrInvalidCharacteristic)
	s.False(s.board.Humidity().IsEnabled())
	s.Equal(service.Failed, s.board.Humidity().State())
}

func (s *BoardTestSuite) TestSetup_UnknownTemperatureAndLightVersions() {
	report := s.attach(
		simulated.Options{Versions: map[service.Kind]int32{service.Temperature: 2, service.Light: 2}},
		Options{},
		service.Temperature, service.Light, service.Buttons,
	)

	s.Equal([]service.Kind{service.Buttons}, report.Enabled())
	s.Equal([]service.Kind{service.Temperature, service.Light}, report.Failed())
	s.ErrorIs(report.Err(), service.ErrUnknownVersion)
	s.False(s.board.Temperature().IsEnabled())
	s.Equal(service.Failed, s.board.Temperature().State())
}

func (s *BoardTestSuite) TestSetup_DiscoveryFailureAborts() {
	s.acc = simulated.New(simulated.Options{}, testutils.NewSilentLogger())
	s.acc.Disconnect()
	s.board = New(s.helper.Logger, Options{})

	_, err := s.board.Setup(s.ctx, s.acc, service.Temperature)
	s.ErrorIs(err, device.ErrNotConnected)
	_, err = s.board.Model()
	s.ErrorIs(err, ErrNoAccessory)
}

func (s *BoardTestSuite) TestSetup_SecondAccessoryRejected() {
	s.attach(simulated.Options{}, Options{})
	other := simulated.New(simulated.Options{ID: "other"}, testutils.NewSilentLogger())
	defer other.Disconnect()

	_, err := s.board.Setup(s.ctx, other)
	s.ErrorIs(err, device.ErrAlreadyConnected)
}

func (s *BoardTestSuite) TestSetup_UnknownKind() {
	s.acc = simulated.New(simulated.Options{}, testutils.NewSilentLogger())
	s.board = New(s.helper.Logger, Options{})
	_, err := s.board.Setup(s.ctx, s.acc, service.Kind("barometer"))
	s.ErrorContains(err, "unknown service")
}

func (s *BoardTestSuite) TestOperationsWithoutAccessory() {
	b := New(s.helper.Logger, Options{})

	s.ErrorIs(b.Temperature().Enable(s.ctx), ErrNoAccessory)
	s.ErrorIs(b.Temperature().Disable(s.ctx), ErrNoAccessory)
	s.False(b.Temperature().IsEnabled())
	_, err := b.ButtonsReadState(s.ctx)
	s.ErrorIs(err, ErrNoAccessory)
	s.ErrorIs(b.NeopixelSetAllPixelsColor(s.ctx, neopixel.RGB{R: 255}), ErrNoAccessory)
	s.ErrorIs(b.ToneGeneratorStopPlaying(s.ctx), ErrNoAccessory)
	s.NoError(b.Close(s.ctx))
	s.NotPanics(b.Teardown)
}

func (s *BoardTestSuite) TestTemperature_StreamsIntoHistory() {
	s.attach(simulated.Options{}, Options{})
	temp := s.board.Temperature()

	got := make(chan Reading[float32], 64)
	cancel := temp.Subscribe(func(r Reading[float32]) { got <- r })
	defer cancel()

	s.Require().NoError(temp.EnableWithPeriod(s.ctx, 10*time.Millisecond))
	s.Equal(service.Period(10), s.acc.Period(service.Temperature))

	select {
	case r := <-got:
		s.Equal(service.Temperature, r.Kind)
		s.Equal(s.acc.ID(), r.AccessoryID)
		s.InDelta(22, r.Value, 1)
	case <-time.After(waitFor):
		s.FailNow("no temperature reading")
	}

	s.Eventually(func() bool { return temp.DataSeries().Len() >= 3 }, waitFor, 5*time.Millisecond)
	v, ok := temp.LastValue()
	s.True(ok)
	s.InDelta(22, v, 1)

	s.Require().NoError(temp.Disable(s.ctx))
	s.False(temp.IsEnabled())
	s.Equal(service.PeriodDisabled, s.acc.Period(service.Temperature))
	s.Positive(temp.DataSeries().Len(), "history survives disable")
}

func (s *BoardTestSuite) TestHistoryFlags() {
	s.attach(simulated.Options{}, Options{})

	s.True(s.board.Light().HistoryEnabled())
	s.True(s.board.Sound().HistoryEnabled())
	s.False(s.board.Accelerometer().HistoryEnabled())

	acc := s.board.Accelerometer()
	s.Require().NoError(acc.EnableWithPeriod(s.ctx, 10*time.Millisecond))
	s.Eventually(func() bool { _, ok := acc.LastValue(); return ok }, waitFor, 5*time.Millisecond)
	s.Zero(acc.DataSeries().Len())

	acc.SetHistoryEnabled(true)
	s.Eventually(func() bool { return acc.DataSeries().Len() > 0 }, waitFor, 5*time.Millisecond)
}

func (s *BoardTestSuite) TestOrientationFlip() {
	tests := []struct {
		name    string
		product uint16
		raw     bool
		wantZ   float32
	}{
		{"cpb keeps frame", simulated.ProductCircuitPlaygroundBluefruit, false, 9.81},
		{"clue flips", simulated.ProductCLUE, false, -9.81},
		{"clue raw", simulated.ProductCLUE, true, 9.81},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			acc := simulated.New(simulated.Options{ProductID: tt.product}, testutils.NewSilentLogger())
			defer acc.Disconnect()
			b := New(s.helper.Logger, Options{KeepRawOrientation: tt.raw})
			defer b.Teardown()

			_, err := b.Setup(s.ctx, acc, service.Accelerometer)
			s.Require().NoError(err)
			v, err := b.Accelerometer().Read(s.ctx)
			s.Require().NoError(err)
			s.InDelta(tt.wantZ, v.Z, 1e-4)
		})
	}
}

func (s *BoardTestSuite) TestButtons_InitialStateAndChanges() {
	s.acc = simulated.New(simulated.Options{}, testutils.NewSilentLogger())
	s.acc.SetButtons(0b001)
	s.board = New(s.helper.Logger, Options{})

	var got []sensor.ButtonsState
	s.board.Buttons().Subscribe(func(r Reading[sensor.ButtonsState]) { got = append(got, r.Value) })

	_, err := s.board.Setup(s.ctx, s.acc, service.Buttons)
	s.Require().NoError(err)

	s.acc.SetButtons(0b010)
	s.acc.SetButtons(0b110)
	s.Require().NoError(s.board.Flush(s.ctx))

	s.Equal([]sensor.ButtonsState{
		sensor.ButtonsFromMask(0b001),
		sensor.ButtonsFromMask(0b010),
		sensor.ButtonsFromMask(0b110),
	}, got)

	state, err := s.board.ButtonsReadState(s.ctx)
	s.Require().NoError(err)
	s.Equal(sensor.ButtonsState{SlideSwitch: sensor.SwitchRight, ButtonA: sensor.Pressed, ButtonB: sensor.Pressed}, state)
}

func (s *BoardTestSuite) TestSound_ChannelCountCachedOnEnable() {
	s.attach(simulated.Options{SoundChannels: 2}, Options{})
	snd := s.board.Sound()

	s.Require().NoError(snd.EnableWithPeriod(s.ctx, 10*time.Millisecond))
	s.Eventually(func() bool { _, ok := s.board.SoundLastAmplitude(); return ok }, waitFor, 5*time.Millisecond)

	a, _ := snd.LastValue()
	s.Len(a, 2)
	db, _ := s.board.SoundLastAmplitude()
	s.Less(db, 0.0)
}

func (s *BoardTestSuite) TestNeopixel_RequiresService() {
	s.attach(simulated.Options{}, Options{}, service.Temperature)
	err := s.board.NeopixelSetAllPixelsColor(s.ctx, neopixel.RGB{R: 255})
	s.ErrorIs(err, service.ErrNotEnabled)
	s.ErrorIs(s.board.NeopixelStartNamedSequence(s.ctx, "rotate", SequenceOptions{}), service.ErrNotEnabled)
}

func (s *BoardTestSuite) TestNeopixel_SetColors() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)
	red := neopixel.RGB{R: 255}
	blue := neopixel.RGB{B: 255}

	s.Require().NoError(s.board.NeopixelSetAllPixelsColor(s.ctx, blue))
	s.Equal(neopixel.EncodePixels(0, true, neopixel.Fill(10, blue)), s.lastPixelWrite())

	mask, err := neopixel.MaskOf(3, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.board.NeopixelSetPixelColor(s.ctx, red, mask))
	s.Equal(neopixel.EncodePixels(0, true, neopixel.Frame{blue, red, blue}), s.lastPixelWrite())

	colors := s.board.NeopixelColors()
	s.Equal(red, colors[1])
	s.Equal(blue, colors[0])
	s.Equal(blue, colors[9])
}

func (s *BoardTestSuite) TestNeopixel_SetPixelColorDuringSequence() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)
	red := neopixel.RGB{R: 255}

	err := s.board.NeopixelStartNamedSequence(s.ctx, "rotate", SequenceOptions{FPS: 50, Speed: 1, Brightness: 1, Repeating: true})
	s.Require().NoError(err)
	s.Eventually(func() bool { return len(s.acc.Writes(service.Neopixels)) >= 3 }, waitFor, 5*time.Millisecond)

	mask, err := neopixel.MaskOf(10, 0)
	s.Require().NoError(err)
	s.Require().NoError(s.board.NeopixelSetPixelColor(s.ctx, red, mask))
	s.False(s.board.IsNeopixelAnimating())

	want := neopixel.Fill(10, neopixel.Off)
	want[0] = red
	s.Equal(want, s.board.NeopixelColors(), "no pixel keeps a color from the stopped sequence")
	s.Equal(neopixel.EncodePixels(0, true, want), s.lastPixelWrite())

	writes := s.acc.Writes(service.Neopixels)
	s.Require().GreaterOrEqual(len(writes), 2)
	s.Equal(s.offPayload(), writes[len(writes)-2].Data)
}

func (s *BoardTestSuite) TestNeopixel_SetPixelColorBadMaskKeepsSequence() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)

	s.Require().NoError(s.board.NeopixelStartNamedSequence(s.ctx, "rotate", SequenceOptions{FPS: 50, Repeating: true}))
	err := s.board.NeopixelSetPixelColor(s.ctx, neopixel.RGB{R: 255}, make([]bool, 11))
	s.Error(err)
	s.True(s.board.IsNeopixelAnimating())
}

func (s *BoardTestSuite) TestNeopixel_SequenceStopFlushesOff() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)

	err := s.board.NeopixelStartNamedSequence(s.ctx, "rotate", SequenceOptions{FPS: 50, Speed: 1, Repeating: true})
	s.Require().NoError(err)
	s.True(s.board.IsNeopixelAnimating())
	s.Eventually(func() bool { return len(s.acc.Writes(service.Neopixels)) >= 3 }, waitFor, 5*time.Millisecond)

	s.Require().NoError(s.board.NeopixelStopLightSequence(s.ctx))
	s.False(s.board.IsNeopixelAnimating())
	s.Equal(s.offPayload(), s.lastPixelWrite())

	n := len(s.acc.Writes(service.Neopixels))
	time.Sleep(60 * time.Millisecond)
	s.Len(s.acc.Writes(service.Neopixels), n, "no frame after stop")
}

func (s *BoardTestSuite) TestNeopixel_NewSequenceReplacesOld() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)

	s.Require().NoError(s.board.NeopixelStartNamedSequence(s.ctx, "pulse", SequenceOptions{FPS: 50, Repeating: true}))
	s.Eventually(func() bool { return len(s.acc.Writes(service.Neopixels)) >= 2 }, waitFor, 5*time.Millisecond)

	s.Require().NoError(s.board.NeopixelStartNamedSequence(s.ctx, "sweep", SequenceOptions{FPS: 50, Repeating: true}))
	s.True(s.board.IsNeopixelAnimating())

	var sawOff bool
	for _, w := range s.acc.Writes(service.Neopixels) {
		if string(w.Data) == string(s.offPayload()) {
			sawOff = true
		}
	}
	s.True(sawOff, "previous sequence flushed off before the new one")
}

func (s *BoardTestSuite) TestNeopixel_FlashEndsWithOff() {
	s.attach(simulated.Options{}, Options{FlashSpeed: 20}, service.Neopixels)

	s.Require().NoError(s.board.NeopixelFlash(s.ctx, neopixel.RGB{G: 255}))
	s.Eventually(func() bool { return !s.board.IsNeopixelAnimating() }, waitFor, 5*time.Millisecond)
	s.Eventually(func() bool { return string(s.lastPixelWrite()) == string(s.offPayload()) }, waitFor, 5*time.Millisecond)
}

func (s *BoardTestSuite) TestTone() {
	s.attach(simulated.Options{}, Options{}, service.ToneGenerator)

	s.Require().NoError(s.board.ToneGeneratorStartPlaying(s.ctx, 440, 500*time.Millisecond))
	s.Require().NoError(s.board.ToneGeneratorStopPlaying(s.ctx))

	writes := s.acc.Writes(service.ToneGenerator)
	s.Require().Len(writes, 2)
	s.Equal([]byte{0xB8, 0x01, 0xF4, 0x01, 0x00, 0x00}, writes[0].Data)
	s.Equal([]byte{0, 0, 0, 0, 0, 0}, writes[1].Data)
}

func (s *BoardTestSuite) TestWillDisconnect_TurnsPixelsOff() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels)
	s.Require().NoError(s.board.NeopixelStartNamedSequence(s.ctx, "sizzle", SequenceOptions{FPS: 50, Repeating: true}))

	s.Require().NoError(s.board.WillDisconnect(s.ctx))
	s.False(s.board.IsNeopixelAnimating())
	s.Equal(s.offPayload(), s.lastPixelWrite())
}

func (s *BoardTestSuite) TestClose_DropsAccessory() {
	s.attach(simulated.Options{}, Options{}, service.Neopixels, service.Light)
	s.Require().NoError(s.board.Close(s.ctx))

	_, err := s.board.AccessoryID()
	s.ErrorIs(err, ErrNoAccessory)
	s.Equal(s.offPayload(), s.lastPixelWrite())
}

func (s *BoardTestSuite) TestDisconnect_TearsDownAndKeepsHistory() {
	s.attach(simulated.Options{}, Options{})
	light := s.board.Light()
	s.Require().NoError(light.EnableWithPeriod(s.ctx, 10*time.Millisecond))
	s.Eventually(func() bool { return light.DataSeries().Len() > 0 }, waitFor, 5*time.Millisecond)

	s.acc.Disconnect()
	s.Eventually(func() bool { _, err := s.board.AccessoryID(); return err != nil }, waitFor, 5*time.Millisecond)
	s.False(light.IsEnabled())
	kept := light.DataSeries().Len()
	s.Positive(kept)

	next := simulated.New(simulated.Options{ID: "second"}, testutils.NewSilentLogger())
	defer next.Disconnect()
	_, err := s.board.Setup(s.ctx, next, service.Light)
	s.Require().NoError(err)
	s.GreaterOrEqual(light.DataSeries().Len(), kept)
	s.Contains(s.helper.Logs.String(), "Accessory disconnected")
}

func TestBoardTestSuite(t *testing.T) {
	suite.Run(t, new(BoardTestSuite))
}
