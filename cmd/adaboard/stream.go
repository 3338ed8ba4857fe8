package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/sensor"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
)

// silenceFloor replaces NaN and -Inf sound amplitudes in printed output.
const silenceFloor = -160.0

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream [address]",
	Short: "Stream sensor readings from a board",
	Long: `Connect to a board, enable the selected sensor services and print every
decoded reading until the duration elapses, the reading count is reached or
Ctrl+C is pressed.

Sensors: temperature, light, humidity, pressure, accelerometer, gyroscope,
magnetometer, quaternion, buttons, color, sound.`,
	Example: `  adaboard stream F0:12:34:56:78:9A --sensor temperature,light
  adaboard stream --simulate --sensor accelerometer --count 10 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

var (
	streamSensors  []string
	streamJSON     bool
	streamDuration time.Duration
	streamCount    int
	streamSummary  bool
)

func init() {
	resetStreamFlags()
}

func resetStreamFlags() {
	streamCmd.ResetFlags()
	streamCmd.Flags().StringSliceVarP(&streamSensors, "sensor", "s", nil, "Sensors to stream (default services from config)")
	streamCmd.Flags().BoolVar(&streamJSON, "json", false, "Print one JSON object per reading")
	streamCmd.Flags().DurationVarP(&streamDuration, "duration", "d", 0, "Stop after this long (0 streams until Ctrl+C)")
	streamCmd.Flags().IntVarP(&streamCount, "count", "n", 0, "Stop after this many readings (0 for no limit)")
	streamCmd.Flags().BoolVar(&streamSummary, "summary", false, "Print min/max of the recorded history when done")
}

func runStream(cmd *cobra.Command, args []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	kinds, err := parseKinds(streamSensors, st.cfg.Services)
	if err != nil {
		return err
	}
	for _, kind := range kinds {
		if kind == service.Neopixels || kind == service.ToneGenerator {
			return fmt.Errorf("%s is not a sensor", kind)
		}
	}
	if streamCount < 0 {
		return fmt.Errorf("--count must be >= 0")
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptible(cmd, "stopping stream")
	defer cancel()
	if streamDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, streamDuration)
		defer stop()
	}

	sess, err := st.connect(ctx, address(args), kinds...)
	if err != nil {
		return err
	}
	defer sess.Close()

	enabled := sess.report.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("no sensor could be enabled: %w", sess.report.Err())
	}

	p := newReadingPrinter(cmd.OutOrStdout(), streamJSON, streamCount)
	for _, kind := range enabled {
		defer watchKind(sess.board, kind, p)()
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			break
		}
		return ctx.Err()
	case <-sess.lost:
		p.close()
		return ErrConnectionLost
	}
	p.close()

	if streamSummary && !streamJSON {
		printSummary(cmd.OutOrStdout(), sess.board, enabled)
	}
	return nil
}

func address(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// readingLine is the printed form of a reading of any sensor.
type readingLine struct {
	Kind      service.Kind `json:"kind"`
	Accessory string       `json:"accessory"`
	Value     any          `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
}

// readingPrinter serializes readings from every stream onto out.
// Output stops once limit readings were printed or close is called.
type readingPrinter struct {
	out   io.Writer
	json  bool
	limit int

	mu     sync.Mutex
	count  int
	closed bool
	done   chan struct{}
}

func newReadingPrinter(out io.Writer, asJSON bool, limit int) *readingPrinter {
	return &readingPrinter{out: out, json: asJSON, limit: limit, done: make(chan struct{})}
}

func (p *readingPrinter) print(l readingLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if a, ok := l.Value.(sensor.Amplitudes); ok {
		clamped := make(sensor.Amplitudes, len(a))
		for i, v := range a {
			clamped[i] = sensor.ClampAmplitude(v, silenceFloor)
		}
		l.Value = clamped
	}

	if p.json {
		data, err := json.Marshal(l)
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
	} else {
		kind := color.New(color.FgCyan).Sprintf("%-13s", l.Kind)
		fmt.Fprintf(p.out, "%s  %s  %s\n", l.Timestamp.Format("15:04:05.000"), kind, formatValue(l.Value))
	}

	p.count++
	if p.limit > 0 && p.count >= p.limit {
		p.closed = true
		close(p.done)
	}
}

func (p *readingPrinter) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case float32:
		return fmt.Sprintf("%.2f", v)
	case sensor.Vector3:
		return fmt.Sprintf("x=%.2f y=%.2f z=%.2f", v.X, v.Y, v.Z)
	case sensor.Quaternion:
		return fmt.Sprintf("w=%.3f x=%.3f y=%.3f z=%.3f", v.W, v.X, v.Y, v.Z)
	case sensor.ButtonsState:
		return fmt.Sprintf("switch=%s a=%s b=%s", v.SlideSwitch, v.ButtonA, v.ButtonB)
	case sensor.Color:
		return fmt.Sprintf("r=%.3f g=%.3f b=%.3f a=%.3f", v.R, v.G, v.B, v.A)
	case sensor.Amplitudes:
		parts := make([]string, len(v))
		for i, a := range v {
			parts[i] = fmt.Sprintf("%.1f dBFS", a)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

func watch[T any](s *board.Stream[T], p *readingPrinter) (cancel func()) {
	return s.Subscribe(func(r board.Reading[T]) {
		p.print(readingLine{Kind: r.Kind, Accessory: r.AccessoryID, Value: r.Value, Timestamp: r.Timestamp})
	})
}

func watchKind(b *board.Board, kind service.Kind, p *readingPrinter) (cancel func()) {
	switch kind {
	case service.Temperature:
		return watch(b.Temperature(), p)
	case service.Light:
		return watch(b.Light(), p)
	case service.Humidity:
		return watch(b.Humidity(), p)
	case service.Pressure:
		return watch(b.Pressure(), p)
	case service.Accelerometer:
		return watch(b.Accelerometer(), p)
	case service.Gyroscope:
		return watch(b.Gyroscope(), p)
	case service.Magnetometer:
		return watch(b.Magnetometer(), p)
	case service.Quaternion:
		return watch(b.Quaternion(), p)
	case service.Buttons:
		return watch(b.Buttons(), p)
	case service.Color:
		return watch(b.Color(), p)
	case service.Sound:
		return watch(b.Sound(), p)
	default:
		return func() {}
	}
}

// printSummary prints the range of every scalar sensor with recorded history.
func printSummary(out io.Writer, b *board.Board, kinds []service.Kind) {
	scalars := map[service.Kind]*board.Stream[float32]{
		service.Temperature: b.Temperature(),
		service.Light:       b.Light(),
		service.Humidity:    b.Humidity(),
		service.Pressure:    b.Pressure(),
	}
	for _, kind := range kinds {
		s, ok := scalars[kind]
		if !ok || !s.HistoryEnabled() {
			continue
		}
		entries := s.DataSeries().Entries()
		if len(entries) == 0 {
			fmt.Fprintf(out, "%s: no samples\n", kind)
			continue
		}
		lo, hi := entries[0].Value, entries[0].Value
		for _, e := range entries[1:] {
			lo, hi = min(lo, e.Value), max(hi, e.Value)
		}
		fmt.Fprintf(out, "%s: %d samples, min %.2f, max %.2f\n", kind, len(entries), lo, hi)
	}
}
