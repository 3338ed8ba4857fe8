package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/adaboard/internal/codec"
	"github.com/srg/adaboard/internal/device"
	"github.com/srg/adaboard/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite
	helper    *testutils.TestHelper
	transport *testutils.MockTransport
	engine    *Engine
	catalog   *Catalog
}

// serviceChars are the mock characteristics of one stubbed service.
type serviceChars struct {
	main    *testutils.MockCharacteristic
	version *testutils.MockCharacteristic
	period  *testutils.MockCharacteristic
}

func (s *EngineTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.transport = testutils.NewMockTransport("board-1")
	s.engine = NewEngine(s.transport, s.helper.Logger)
	s.catalog = DefaultCatalog()
}

// stub wires the discovery and version reads of desc; period writes and
// subscriptions are left to each test.
func (s *EngineTestSuite) stub(desc Descriptor, version int32) serviceChars {
	c := serviceChars{
		main:    testutils.NewMockCharacteristic(desc.ServiceUUID, desc.MainCharUUID),
		version: testutils.NewMockCharacteristic(desc.ServiceUUID, desc.VersionCharUUID),
		period:  testutils.NewMockCharacteristic(desc.ServiceUUID, PeriodCharUUID),
	}
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, desc.MainCharUUID).Return(c.main, nil)
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, desc.VersionCharUUID).Return(c.version, nil)
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, PeriodCharUUID).Return(c.period, nil).Maybe()
	s.transport.On("Read", mock.Anything, c.version).Return(codec.EncodeInt32(version), nil)
	return c
}

func (s *EngineTestSuite) expectSensorEnable(c serviceChars, period Period) {
	s.transport.On("Write", mock.Anything, c.period, codec.EncodeInt32(int32(period)), true).Return(nil)
	s.transport.On("Subscribe", mock.Anything, c.main, mock.Anything).Return(nil)
}

func (s *EngineTestSuite) TestEnable_SensorHappyPath() {
	desc := s.catalog.MustGet(Accelerometer)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)

	var got []Sample
	err := s.engine.Enable(context.Background(), desc, EnableOptions{OnSample: func(smp Sample) { got = append(got, smp) }})
	s.Require().NoError(err)

	s.True(s.engine.IsEnabled(Accelerometer))
	s.Equal(Enabled, s.engine.State(Accelerometer))
	sess, ok := s.engine.Session(Accelerometer)
	s.Require().True(ok)
	s.Equal(int32(1), sess.Version())
	p, ok := sess.Period()
	s.True(ok)
	s.Equal(Period(100), p)

	payload := codec.EncodeFloat32s([]float32{1, 2, 3})
	s.True(s.transport.Notify(desc.MainCharUUID, payload))
	s.Require().Len(got, 1)
	s.Equal(Sample{Kind: Accelerometer, AccessoryID: "board-1", Data: payload}, got[0])
	s.transport.AssertExpectations(s.T())
}

func (s *EngineTestSuite) TestEnable_PeriodOverride() {
	desc := s.catalog.MustGet(Light)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 250)

	period := PeriodOf(250 * time.Millisecond)
	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{Period: &period}))
	s.transport.AssertCalled(s.T(), "Write", mock.Anything, c.period, []byte{0xFA, 0x00, 0x00, 0x00}, true)
}

func (s *EngineTestSuite) TestEnable_RequiredVersionMismatch() {
	desc := s.catalog.MustGet(Accelerometer)
	s.stub(desc, 2)

	err := s.engine.Enable(context.Background(), desc, EnableOptions{})
	s.ErrorIs(err, ErrUnknownVersion)
	s.False(s.engine.IsEnabled(Accelerometer))
	s.Equal(Failed, s.engine.State(Accelerometer))
	s.transport.AssertNotCalled(s.T(), "Subscribe", mock.Anything, mock.Anything, mock.Anything)
	s.transport.AssertNotCalled(s.T(), "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestEnable_AdvisoryVersionMismatch() {
	desc := s.catalog.MustGet(Temperature)
	desc.VersionPolicy = VersionAdvisory
	c := s.stub(desc, 2)
	s.expectSensorEnable(c, 100)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	s.True(s.engine.IsEnabled(Temperature))
	s.Contains(s.helper.Logs.String(), "Unexpected service version")
}

func (s *EngineTestSuite) TestEnable_TemperatureAndLightRequireVersion() {
	for _, kind := range []Kind{Temperature, Light} {
		desc := s.catalog.MustGet(kind)
		s.stub(desc, 2)

		err := s.engine.Enable(context.Background(), desc, EnableOptions{})
		s.ErrorIs(err, ErrUnknownVersion, kind)
		s.False(s.engine.IsEnabled(kind))
		s.Equal(Failed, s.engine.State(kind))
	}
	s.transport.AssertNotCalled(s.T(), "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestEnable_FailedReEnableKeepsSession() {
	desc := s.catalog.MustGet(Magnetometer)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))

	period := PeriodOf(500 * time.Millisecond)
	s.transport.On("Write", mock.Anything, c.period, codec.EncodeInt32(int32(period)), true).
		Return(errors.New("write rejected"))

	err := s.engine.Enable(context.Background(), desc, EnableOptions{Period: &period})
	s.Require().Error(err)
	s.True(s.engine.IsEnabled(Magnetometer))
	s.Equal(Enabled, s.engine.State(Magnetometer), "state follows the surviving session")
	sess, ok := s.engine.Session(Magnetometer)
	s.Require().True(ok)
	p, _ := sess.Period()
	s.Equal(Period(100), p)
}

func (s *EngineTestSuite) TestEnable_VersionReadFailureFallsBackToDefault() {
	desc := s.catalog.MustGet(Gyroscope)
	c := serviceChars{
		main:   testutils.NewMockCharacteristic(desc.ServiceUUID, desc.MainCharUUID),
		period: testutils.NewMockCharacteristic(desc.ServiceUUID, PeriodCharUUID),
	}
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, desc.MainCharUUID).Return(c.main, nil)
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, desc.VersionCharUUID).
		Return(nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{desc.ServiceUUID, desc.VersionCharUUID}})
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, PeriodCharUUID).Return(c.period, nil)
	s.expectSensorEnable(c, 100)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	sess, _ := s.engine.Session(Gyroscope)
	s.Equal(DefaultVersion, sess.Version())
}

func (s *EngineTestSuite) TestEnable_InvalidCharacteristic() {
	desc := s.catalog.MustGet(Humidity)
	notFound := &device.NotFoundError{Resource: "service", UUIDs: []string{desc.ServiceUUID}}
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, desc.MainCharUUID).Return(nil, notFound)

	err := s.engine.Enable(context.Background(), desc, EnableOptions{})
	s.ErrorIs(err, ErrInvalidCharacteristic)
	var nf *device.NotFoundError
	s.ErrorAs(err, &nf)
	s.False(s.engine.IsEnabled(Humidity))
}

func (s *EngineTestSuite) TestEnable_SubscribeNotConfirmed() {
	desc := s.catalog.MustGet(Pressure)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.transport.KeepNotifyState = true

	err := s.engine.Enable(context.Background(), desc, EnableOptions{})
	s.ErrorIs(err, ErrEnableNotifyFailed)
	s.False(s.engine.IsEnabled(Pressure))
	s.Equal(Failed, s.engine.State(Pressure))
}

func (s *EngineTestSuite) TestEnable_SubscribeError() {
	desc := s.catalog.MustGet(Pressure)
	c := s.stub(desc, 1)
	s.transport.On("Write", mock.Anything, c.period, mock.Anything, true).Return(nil)
	s.transport.On("Subscribe", mock.Anything, c.main, mock.Anything).Return(device.ErrNotConnected)

	err := s.engine.Enable(context.Background(), desc, EnableOptions{})
	s.ErrorIs(err, ErrEnableNotifyFailed)
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *EngineTestSuite) TestEnable_TwiceRebindsHandler() {
	desc := s.catalog.MustGet(Light)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.transport.On("SetNotifyHandler", c.main, mock.Anything).Return(nil)

	var first, second int
	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{OnSample: func(Sample) { first++ }}))
	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{OnSample: func(Sample) { second++ }}))

	s.transport.AssertNumberOfCalls(s.T(), "Subscribe", 1)
	s.transport.AssertNumberOfCalls(s.T(), "SetNotifyHandler", 1)

	s.transport.Notify(desc.MainCharUUID, codec.EncodeFloat32s([]float32{42}))
	s.Equal(0, first)
	s.Equal(1, second)
}

func (s *EngineTestSuite) TestEnable_ButtonsDeliversInitialState() {
	desc := s.catalog.MustGet(Buttons)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, PeriodOnChange)
	s.transport.On("Read", mock.Anything, c.main).Return([]byte{0x05, 0, 0, 0}, nil)

	var got []Sample
	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{OnSample: func(smp Sample) { got = append(got, smp) }}))

	s.transport.AssertCalled(s.T(), "Write", mock.Anything, c.period, []byte{0, 0, 0, 0}, true)
	s.Require().Len(got, 1)
	s.Equal([]byte{0x05, 0, 0, 0}, got[0].Data)
	s.NoError(got[0].Err)
}

func (s *EngineTestSuite) TestEnable_CommandOnlyService() {
	desc := s.catalog.MustGet(Neopixels)
	c := s.stub(desc, 1)
	s.transport.On("Write", mock.Anything, c.main, []byte{1, 2, 3}, true).Return(nil)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	s.True(s.engine.IsEnabled(Neopixels))
	s.transport.AssertNotCalled(s.T(), "Subscribe", mock.Anything, mock.Anything, mock.Anything)

	s.NoError(s.engine.Write(context.Background(), Neopixels, []byte{1, 2, 3}, true))
}

func (s *EngineTestSuite) TestEnable_ConcurrentRejected() {
	desc := s.catalog.MustGet(Magnetometer)
	c := s.stub(desc, 1)
	entered := make(chan struct{})
	release := make(chan struct{})
	s.transport.On("Write", mock.Anything, c.period, mock.Anything, true).Return(nil)
	s.transport.On("Subscribe", mock.Anything, c.main, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).Return(nil)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = s.engine.Enable(context.Background(), desc, EnableOptions{})
	}()
	<-entered

	err := s.engine.Enable(context.Background(), desc, EnableOptions{})
	s.ErrorIs(err, ErrEnableInProgress)

	close(release)
	wg.Wait()
	s.NoError(firstErr)
	s.True(s.engine.IsEnabled(Magnetometer))
}

func (s *EngineTestSuite) TestDisable_WritesDisabledPeriodThenUnsubscribes() {
	desc := s.catalog.MustGet(Accelerometer)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.transport.On("Write", mock.Anything, c.period, []byte{0xFF, 0xFF, 0xFF, 0xFF}, true).Return(nil)
	s.transport.On("Unsubscribe", mock.Anything, c.main).Return(nil)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	s.Require().NoError(s.engine.Disable(context.Background(), Accelerometer))

	s.False(s.engine.IsEnabled(Accelerometer))
	s.Equal(Idle, s.engine.State(Accelerometer))
	s.False(c.main.IsNotifying())

	calls := s.transport.Calls
	last := calls[len(calls)-1]
	s.Equal("Unsubscribe", last.Method)
	prev := calls[len(calls)-2]
	s.Equal("Write", prev.Method)
	s.Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF}, prev.Arguments.Get(2))
}

func (s *EngineTestSuite) TestDisable_Idempotent() {
	s.NoError(s.engine.Disable(context.Background(), Light))
	s.NoError(s.engine.Disable(context.Background(), Light))
	s.Equal(Idle, s.engine.State(Light))
	s.Empty(s.transport.Calls)
}

func (s *EngineTestSuite) TestDisable_PeriodWriteFailureStillUnsubscribes() {
	desc := s.catalog.MustGet(Color)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.transport.On("Write", mock.Anything, c.period, codec.EncodeInt32(-1), true).Return(errors.New("write failed"))
	s.transport.On("Unsubscribe", mock.Anything, c.main).Return(nil)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	s.NoError(s.engine.Disable(context.Background(), Color))
	s.transport.AssertCalled(s.T(), "Unsubscribe", mock.Anything, c.main)
}

func (s *EngineTestSuite) TestDisable_UnsubscribeNotConfirmed() {
	desc := s.catalog.MustGet(Sound)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	s.transport.On("Write", mock.Anything, c.period, codec.EncodeInt32(-1), true).Return(nil)
	s.transport.On("Unsubscribe", mock.Anything, c.main).Return(nil)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	s.transport.KeepNotifyState = true

	err := s.engine.Disable(context.Background(), Sound)
	s.ErrorIs(err, ErrDisableNotifyFailed)
	s.Equal(Failed, s.engine.State(Sound))
	s.True(s.engine.IsEnabled(Sound))
}

func (s *EngineTestSuite) TestDisable_CancelsInFlightEnable() {
	desc := s.catalog.MustGet(Quaternion)
	c := s.stub(desc, 1)
	entered := make(chan struct{})
	s.transport.On("Write", mock.Anything, c.period, mock.Anything, true).Return(nil)
	s.transport.On("Subscribe", mock.Anything, c.main, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-args.Get(0).(context.Context).Done()
		}).Return(context.Canceled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.engine.Enable(context.Background(), desc, EnableOptions{})
	}()
	<-entered

	s.NoError(s.engine.Disable(context.Background(), Quaternion))
	err := <-errCh
	s.ErrorIs(err, context.Canceled)
	s.ErrorIs(err, errDisabled)
	s.False(s.engine.IsEnabled(Quaternion))
	s.Equal(Idle, s.engine.State(Quaternion))
}

func (s *EngineTestSuite) TestTeardown() {
	for _, kind := range []Kind{Light, Temperature} {
		desc := s.catalog.MustGet(kind)
		c := s.stub(desc, 1)
		s.expectSensorEnable(c, 100)
		s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	}

	s.engine.Teardown()
	for _, kind := range []Kind{Light, Temperature} {
		s.False(s.engine.IsEnabled(kind))
		s.Equal(Idle, s.engine.State(kind))
	}
	s.transport.AssertNotCalled(s.T(), "Unsubscribe", mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestAccessors_RequireEnabledService() {
	ctx := context.Background()
	_, err := s.engine.Read(ctx, Light)
	s.ErrorIs(err, ErrNotEnabled)
	_, err = s.engine.ReadSibling(ctx, Sound, SoundChannelsCharUUID)
	s.ErrorIs(err, ErrNotEnabled)
	s.ErrorIs(s.engine.Write(ctx, ToneGenerator, []byte{1}, true), ErrNotEnabled)
}

func (s *EngineTestSuite) TestReadSibling() {
	desc := s.catalog.MustGet(Sound)
	c := s.stub(desc, 1)
	s.expectSensorEnable(c, 100)
	channels := testutils.NewMockCharacteristic(desc.ServiceUUID, SoundChannelsCharUUID)
	s.transport.On("FindCharacteristic", mock.Anything, desc.ServiceUUID, SoundChannelsCharUUID).Return(channels, nil)
	s.transport.On("Read", mock.Anything, channels).Return([]byte{2}, nil)

	s.Require().NoError(s.engine.Enable(context.Background(), desc, EnableOptions{}))
	data, err := s.engine.ReadSibling(context.Background(), Sound, SoundChannelsCharUUID)
	s.Require().NoError(err)
	s.Equal([]byte{2}, data)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
