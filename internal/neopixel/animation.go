package neopixel

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/adaboard/internal/groutine"
)

// Defaults used by the board when the caller does not choose.
const (
	DefaultFPS        = 10
	DefaultSpeed      = 0.3
	DefaultBrightness = 0.25
)

var ErrInvalidAnimation = errors.New("invalid animation")

// StopReason tells a stop callback why the animation ended.
type StopReason int

const (
	// Finished means a non-repeating animation played all its frames.
	Finished StopReason = iota
	// Cancelled means Stop was called or the context ended.
	Cancelled
)

func (r StopReason) String() string {
	if r == Finished {
		return "finished"
	}
	return "cancelled"
}

// Tick is one rendered animation step.
type Tick struct {
	// Index is the frame the colors start from; always below the generator's frame count.
	Index int
	// Fraction is the blend weight towards the next frame.
	Fraction float64
	Colors   Frame
}

// AnimationOptions configure playback.
type AnimationOptions struct {
	FPS       int
	Speed     float64
	Repeating bool
	// Now overrides the clock; tests use it to drive playback deterministically.
	Now func() time.Time
}

// Animation plays a Generator at a fixed tick rate. OnFrame and OnStop run on
// the animation goroutine; OnStop runs exactly once however the animation ends.
type Animation struct {
	gen     Generator
	opts    AnimationOptions
	onFrame func(Tick)
	onStop  func(StopReason)
	logger  *logrus.Logger

	origin   time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewAnimation validates the options and prepares an animation; Start runs it.
func NewAnimation(gen Generator, opts AnimationOptions, onFrame func(Tick), onStop func(StopReason), logger *logrus.Logger) (*Animation, error) {
	if gen == nil || gen.FrameCount() <= 0 {
		return nil, errors.Join(ErrInvalidAnimation, errors.New("generator has no frames"))
	}
	if opts.FPS <= 0 || opts.Speed <= 0 || math.IsInf(opts.Speed, 0) || math.IsNaN(opts.Speed) {
		return nil, errors.Join(ErrInvalidAnimation, errors.New("fps and speed must be positive"))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if onFrame == nil {
		onFrame = func(Tick) {}
	}
	if onStop == nil {
		onStop = func(StopReason) {}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Animation{
		gen:     gen,
		opts:    opts,
		onFrame: onFrame,
		onStop:  onStop,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start records the time origin and starts ticking.
func (a *Animation) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.origin = a.opts.Now()
	interval := time.Second / time.Duration(a.opts.FPS)

	a.logger.WithFields(logrus.Fields{
		"frames":    a.gen.FrameCount(),
		"fps":       a.opts.FPS,
		"speed":     a.opts.Speed,
		"repeating": a.opts.Repeating,
	}).Debug("Animation started")

	groutine.Go(ctx, "neopixel-animation", func(ctx context.Context) {
		defer close(a.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.finish(Cancelled)
				return
			case <-ticker.C:
				if !a.step(a.opts.Now()) {
					return
				}
			}
		}
	})
}

// Stop cancels the animation and waits until its goroutine has exited, so no
// frame is emitted after Stop returns.
func (a *Animation) Stop() {
	if a.cancel == nil {
		a.finish(Cancelled)
		return
	}
	a.cancel()
	<-a.done
}

// Done is closed once the animation goroutine has exited.
func (a *Animation) Done() <-chan struct{} { return a.done }

func (a *Animation) finish(reason StopReason) {
	a.stopOnce.Do(func() {
		a.logger.WithField("reason", reason).Debug("Animation stopped")
		a.onStop(reason)
	})
}

// step renders the frame for now; it returns false once a non-repeating animation has ended.
func (a *Animation) step(now time.Time) bool {
	tick, ok := a.frameAt(now.Sub(a.origin))
	if !ok {
		a.finish(Finished)
		return false
	}
	a.onFrame(tick)
	return true
}

// frameAt maps elapsed playback time to an interpolated frame.
func (a *Animation) frameAt(elapsed time.Duration) (Tick, bool) {
	n := a.gen.FrameCount()
	pos := elapsed.Seconds() * float64(n) * a.opts.Speed
	if pos < 0 {
		pos = 0
	}
	if !a.opts.Repeating && pos >= float64(n) {
		return Tick{}, false
	}
	pos = math.Mod(pos, float64(n))

	pre := int(math.Floor(pos))
	if pre >= n {
		pre = n - 1
	}
	post := pre + 1
	if post >= n {
		if a.gen.IsCyclic() {
			post = 0
		} else {
			post = n - 1
		}
	}
	frac := pos - float64(pre)

	return Tick{
		Index:    pre,
		Fraction: frac,
		Colors:   Blend(a.gen.ColorsForFrame(pre), a.gen.ColorsForFrame(post), frac),
	}, true
}
