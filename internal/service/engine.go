package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/codec"
	"github.com/srg/adaboard/internal/device"
)

// Errors reported by Enable and Disable.
var (
	ErrInvalidCharacteristic = errors.New("invalid characteristic")
	ErrEnableNotifyFailed    = errors.New("enable notify failed")
	ErrDisableNotifyFailed   = errors.New("disable notify failed")
	ErrUnknownVersion        = errors.New("unknown version")
	ErrEnableInProgress      = errors.New("enable already in progress")
	ErrNotEnabled            = errors.New("service not enabled")
)

// errDisabled is the cancellation cause of an enable interrupted by Disable.
var errDisabled = errors.New("disabled while enabling")

// Sample is one notification, or a subscription failure when Err is set.
type Sample struct {
	Kind        Kind
	AccessoryID string
	Data        []byte
	Err         error
}

// SampleHandler receives samples on the transport's notification goroutine.
type SampleHandler func(Sample)

// EnableOptions tune a single Enable call.
type EnableOptions struct {
	// Period overrides the descriptor default; nil keeps the default.
	Period *Period
	// OnSample receives every notification of the main characteristic.
	OnSample SampleHandler
}

// Session is the runtime state of an enabled service.
type Session struct {
	desc    Descriptor
	char    device.Characteristic
	version int32
	period  *Period
}

func (s *Session) Descriptor() Descriptor                { return s.desc }
func (s *Session) Characteristic() device.Characteristic { return s.char }
func (s *Session) Version() int32                        { return s.version }

// Period returns the sample period written on enable, if any.
func (s *Session) Period() (Period, bool) {
	if s.period == nil {
		return 0, false
	}
	return *s.period, true
}

// IsNotifying reports whether the main characteristic is currently notifying.
func (s *Session) IsNotifying() bool { return s.char != nil && s.char.IsNotifying() }

// operation is an in-flight enable or disable.
type operation struct {
	enabling bool
	desc     Descriptor
	cancel   context.CancelCauseFunc
	done     chan struct{}
	// char is the main characteristic once discovered, used to undo a cancelled enable
	char device.Characteristic
}

// Engine runs the enable/disable sequences of every service of one accessory.
type Engine struct {
	transport device.Transport
	logger    *logrus.Logger

	mu       sync.Mutex
	sessions map[Kind]*Session
	inflight map[Kind]*operation
	states   map[Kind]State
}

// NewEngine creates an engine bound to transport.
func NewEngine(transport device.Transport, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		transport: transport,
		logger:    logger,
		sessions:  make(map[Kind]*Session),
		inflight:  make(map[Kind]*operation),
		states:    make(map[Kind]State),
	}
}

// Transport returns the transport the engine drives.
func (e *Engine) Transport() device.Transport { return e.transport }

// State returns the current state of kind.
func (e *Engine) State(kind Kind) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[kind]
}

func (e *Engine) setState(kind Kind, s State) {
	e.mu.Lock()
	prev := e.states[kind]
	e.states[kind] = s
	e.mu.Unlock()

	if prev != s {
		e.logger.WithFields(logrus.Fields{
			"service": kind,
			"from":    prev,
			"to":      s,
		}).Debug("Service state changed")
	}
}

// Session returns the session of an enabled service.
func (e *Engine) Session(kind Kind) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[kind]
	return s, ok
}

// IsEnabled reports whether kind has a session and, for notifying services, is notifying.
func (e *Engine) IsEnabled(kind Kind) bool {
	s, ok := e.Session(kind)
	if !ok {
		return false
	}
	return !s.desc.Notifies || s.IsNotifying()
}

// Enable negotiates desc with the accessory: discover, check version, set period, subscribe.
//
// A second Enable for a kind that already has an operation in flight fails with
// ErrEnableInProgress. A Disable issued meanwhile cancels the enable, which then
// returns an error matching context.Canceled and leaves no session behind.
func (e *Engine) Enable(ctx context.Context, desc Descriptor, opts EnableOptions) (err error) {
	kind := desc.Kind
	log := e.logger.WithField("service", kind)

	e.mu.Lock()
	if _, busy := e.inflight[kind]; busy {
		e.mu.Unlock()
		log.Warn("Enable rejected, another operation is in flight")
		return fmt.Errorf("%s: %w", kind, ErrEnableInProgress)
	}
	opCtx, cancel := context.WithCancelCause(ctx)
	op := &operation{enabling: true, desc: desc, cancel: cancel, done: make(chan struct{})}
	e.inflight[kind] = op
	e.mu.Unlock()

	defer func() {
		cancel(nil)
		if err != nil {
			log.WithField("error", err).Error("Failed to enable service")
			// a failed re-enable keeps the session that was already serving
			if e.IsEnabled(kind) {
				e.setState(kind, Enabled)
			} else {
				e.setState(kind, Failed)
			}
		}
		e.mu.Lock()
		delete(e.inflight, kind)
		e.mu.Unlock()
		close(op.done)
	}()

	sess, err := e.runEnable(opCtx, desc, opts, op)
	if err != nil {
		if opCtx.Err() != nil {
			cause := context.Cause(opCtx)
			if errors.Is(cause, opCtx.Err()) {
				return fmt.Errorf("%s: enable aborted: %w", kind, cause)
			}
			return fmt.Errorf("%s: enable aborted (%w): %w", kind, cause, opCtx.Err())
		}
		return err
	}

	e.mu.Lock()
	e.sessions[kind] = sess
	e.mu.Unlock()
	e.setState(kind, Enabled)

	fields := logrus.Fields{"version": sess.version}
	if p, ok := sess.Period(); ok {
		fields["period"] = p.String()
	}
	log.WithFields(fields).Info("Service enabled")
	return nil
}

func (e *Engine) runEnable(ctx context.Context, desc Descriptor, opts EnableOptions, op *operation) (*Session, error) {
	kind := desc.Kind
	log := e.logger.WithField("service", kind)

	e.setState(kind, Discovering)
	char, err := e.transport.FindCharacteristic(ctx, desc.ServiceUUID, desc.MainCharUUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", kind, ErrInvalidCharacteristic, err)
	}
	e.mu.Lock()
	op.char = char
	e.mu.Unlock()

	e.setState(kind, CheckingVersion)
	version := e.readVersion(ctx, desc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.ExpectedVersion != 0 && version != desc.ExpectedVersion {
		if desc.VersionPolicy == VersionRequired {
			return nil, fmt.Errorf("%s: %w: %d (expected %d)", kind, ErrUnknownVersion, version, desc.ExpectedVersion)
		}
		log.WithFields(logrus.Fields{
			"version":  version,
			"expected": desc.ExpectedVersion,
		}).Warn("Unexpected service version, continuing")
	}

	sess := &Session{desc: desc, char: char, version: version}
	if !desc.Notifies {
		return sess, nil
	}

	period := desc.DefaultPeriod
	if opts.Period != nil {
		period = opts.Period
	}
	if period != nil && desc.PeriodCharUUID != "" {
		e.setState(kind, SettingPeriod)
		if err := e.writePeriod(ctx, desc, *period); err != nil {
			return nil, err
		}
		sess.period = period
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.setState(kind, Subscribing)
	handler := e.sampleHandler(kind, opts.OnSample)
	if char.IsNotifying() {
		if err := e.transport.SetNotifyHandler(char, handler); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", kind, ErrEnableNotifyFailed, err)
		}
		log.Debug("Characteristic already notifying, handler rebound")
	} else {
		if err := e.transport.Subscribe(ctx, char, handler); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", kind, ErrEnableNotifyFailed, err)
		}
		if !char.IsNotifying() {
			return nil, fmt.Errorf("%s: %w: characteristic is not notifying after subscribe", kind, ErrEnableNotifyFailed)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// change-only streams carry no initial value
	if period != nil && *period == PeriodOnChange {
		data, err := e.transport.Read(ctx, char)
		if err != nil {
			log.WithField("error", err).Warn("Initial read failed")
		}
		handler(data, err)
	}
	return sess, nil
}

// readVersion reads the version characteristic, falling back to DefaultVersion on any failure.
func (e *Engine) readVersion(ctx context.Context, desc Descriptor) int32 {
	if desc.VersionCharUUID == "" {
		return DefaultVersion
	}
	log := e.logger.WithField("service", desc.Kind)

	char, err := e.transport.FindCharacteristic(ctx, desc.ServiceUUID, desc.VersionCharUUID)
	if err != nil {
		log.WithField("error", err).Debug("No version characteristic, assuming default version")
		return DefaultVersion
	}
	data, err := e.transport.Read(ctx, char)
	if err != nil {
		log.WithField("error", err).Debug("Version read failed, assuming default version")
		return DefaultVersion
	}
	v, err := codec.Int32(data)
	if err != nil {
		log.WithField("error", err).Debug("Malformed version, assuming default version")
		return DefaultVersion
	}
	return v
}

func (e *Engine) writePeriod(ctx context.Context, desc Descriptor, period Period) error {
	char, err := e.transport.FindCharacteristic(ctx, desc.ServiceUUID, desc.PeriodCharUUID)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", desc.Kind, ErrInvalidCharacteristic, err)
	}
	if err := e.transport.Write(ctx, char, codec.EncodeInt32(int32(period)), true); err != nil {
		return fmt.Errorf("%s: set period %s: %w", desc.Kind, period, err)
	}
	e.logger.WithFields(logrus.Fields{
		"service": desc.Kind,
		"period":  period.String(),
	}).Debug("Sample period written")
	return nil
}

func (e *Engine) sampleHandler(kind Kind, onSample SampleHandler) device.NotificationHandler {
	id := e.transport.ID()
	return func(data []byte, err error) {
		if onSample == nil {
			return
		}
		onSample(Sample{Kind: kind, AccessoryID: id, Data: data, Err: err})
	}
}

// Disable stops kind: period -1 first, then unsubscribe. Disabling a service that is
// not enabled is a no-op. An in-flight enable of kind is cancelled and awaited first.
func (e *Engine) Disable(ctx context.Context, kind Kind) error {
	log := e.logger.WithField("service", kind)

	e.mu.Lock()
	if op, ok := e.inflight[kind]; ok {
		op.cancel(errDisabled)
		e.mu.Unlock()
		select {
		case <-op.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		if !op.enabling {
			e.mu.Unlock()
			return nil
		}
		if _, ok := e.sessions[kind]; !ok && op.char != nil && op.char.IsNotifying() {
			// the cancelled enable got as far as subscribing
			e.sessions[kind] = &Session{desc: op.desc, char: op.char}
		}
	}
	if _, busy := e.inflight[kind]; busy {
		e.mu.Unlock()
		return fmt.Errorf("%s: %w", kind, ErrEnableInProgress)
	}
	sess, ok := e.sessions[kind]
	if !ok {
		e.mu.Unlock()
		e.setState(kind, Idle)
		return nil
	}
	delete(e.sessions, kind)
	done := make(chan struct{})
	e.inflight[kind] = &operation{cancel: func(error) {}, done: done}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, kind)
		e.mu.Unlock()
		close(done)
	}()

	e.setState(kind, Disabling)

	desc := sess.desc
	if desc.Notifies && desc.PeriodCharUUID != "" {
		if err := e.writePeriod(ctx, desc, PeriodDisabled); err != nil {
			log.WithField("error", err).Warn("Failed to disable periodic measurements")
		}
	}

	if sess.IsNotifying() {
		err := e.transport.Unsubscribe(ctx, sess.char)
		if err == nil && sess.char.IsNotifying() {
			err = errors.New("characteristic still notifying after unsubscribe")
		}
		if err != nil {
			e.mu.Lock()
			e.sessions[kind] = sess
			e.mu.Unlock()
			e.setState(kind, Failed)
			log.WithField("error", err).Error("Failed to disable service")
			return fmt.Errorf("%s: %w: %w", kind, ErrDisableNotifyFailed, err)
		}
	}

	e.setState(kind, Idle)
	log.Info("Service disabled")
	return nil
}

// Teardown drops every session without talking to the accessory; used once the link is gone.
func (e *Engine) Teardown() {
	e.mu.Lock()
	for _, op := range e.inflight {
		op.cancel(device.ErrNotConnected)
	}
	kinds := make([]Kind, 0, len(e.sessions))
	for k := range e.sessions {
		kinds = append(kinds, k)
	}
	e.sessions = make(map[Kind]*Session)
	for k := range e.states {
		e.states[k] = Idle
	}
	e.mu.Unlock()

	e.logger.WithField("sessions", kinds).Info("All service sessions torn down")
}

// Read reads the main characteristic of an enabled service.
func (e *Engine) Read(ctx context.Context, kind Kind) ([]byte, error) {
	sess, ok := e.Session(kind)
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotEnabled)
	}
	return e.transport.Read(ctx, sess.char)
}

// ReadSibling reads another characteristic of an enabled service.
func (e *Engine) ReadSibling(ctx context.Context, kind Kind, charUUID string) ([]byte, error) {
	sess, ok := e.Session(kind)
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotEnabled)
	}
	char, err := e.transport.FindCharacteristic(ctx, sess.desc.ServiceUUID, charUUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", kind, ErrInvalidCharacteristic, err)
	}
	return e.transport.Read(ctx, char)
}

// Write writes to the main characteristic of an enabled service.
func (e *Engine) Write(ctx context.Context, kind Kind, data []byte, withResponse bool) error {
	sess, ok := e.Session(kind)
	if !ok {
		return fmt.Errorf("%s: %w", kind, ErrNotEnabled)
	}
	return e.transport.Write(ctx, sess.char, data, withResponse)
}
