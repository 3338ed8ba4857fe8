package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/neopixel"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
)

// pixelsCmd represents the pixels command
var pixelsCmd = &cobra.Command{
	Use:   "pixels [address]",
	Short: "Set NeoPixel colors or run a light sequence",
	Long: `Drive the board's NeoPixels.

With --color every pixel (or those listed with --pixel) is set to one color.
With --sequence a built-in light sequence plays; --once plays it a single time.
With --flash the one-shot flash cue plays in the given color.

Pixels are turned off when the command exits, after --duration or on Ctrl+C.
Colors are names (red, green, blue, ...), #rrggbb or r,g,b.`,
	Example: `  adaboard pixels F0:12:34:56:78:9A --color red --duration 5s
  adaboard pixels --simulate --sequence rotate --fps 20 --brightness 0.5
  adaboard pixels --simulate --flash blue`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPixels,
}

var (
	pixelsColor      string
	pixelsIndices    []int
	pixelsSequence   string
	pixelsFlash      string
	pixelsFPS        int
	pixelsSpeed      float64
	pixelsBrightness float64
	pixelsOnce       bool
	pixelsDuration   time.Duration
)

func init() {
	resetPixelsFlags()
}

func resetPixelsFlags() {
	pixelsCmd.ResetFlags()
	pixelsCmd.Flags().StringVarP(&pixelsColor, "color", "c", "", "Set pixels to this color")
	pixelsCmd.Flags().IntSliceVarP(&pixelsIndices, "pixel", "p", nil, "Pixel indices to set (default all)")
	pixelsCmd.Flags().StringVar(&pixelsSequence, "sequence", "", "Light sequence to play ("+strings.Join(neopixel.SequenceNames(), ", ")+")")
	pixelsCmd.Flags().StringVar(&pixelsFlash, "flash", "", "Play the flash cue in this color")
	pixelsCmd.Flags().IntVar(&pixelsFPS, "fps", 0, "Sequence frames per second (default from config)")
	pixelsCmd.Flags().Float64Var(&pixelsSpeed, "speed", 0, "Sequence speed multiplier (default from config)")
	pixelsCmd.Flags().Float64Var(&pixelsBrightness, "brightness", 0, "Sequence brightness 0..1 (default from config)")
	pixelsCmd.Flags().BoolVar(&pixelsOnce, "once", false, "Play the sequence a single time")
	pixelsCmd.Flags().DurationVarP(&pixelsDuration, "duration", "d", 0, "Exit after this long (0 waits for Ctrl+C or the end of a single sequence)")
}

// pixelAction is the one thing a pixels invocation does.
type pixelAction func(ctx context.Context, b *board.Board) (finite bool, err error)

func parsePixelAction() (pixelAction, error) {
	modes := 0
	for _, set := range []bool{pixelsColor != "", pixelsSequence != "", pixelsFlash != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, fmt.Errorf("exactly one of --color, --sequence or --flash is required")
	}
	if pixelsBrightness < 0 || pixelsBrightness > 1 {
		return nil, fmt.Errorf("--brightness must be in 0..1, got %g", pixelsBrightness)
	}

	switch {
	case pixelsColor != "":
		color, err := neopixel.ParseColor(pixelsColor)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, b *board.Board) (bool, error) {
			if len(pixelsIndices) == 0 {
				return false, b.NeopixelSetAllPixelsColor(ctx, color)
			}
			mask, err := neopixel.MaskOf(b.NeopixelPixelCount(), pixelsIndices...)
			if err != nil {
				return false, err
			}
			return false, b.NeopixelSetPixelColor(ctx, color, mask)
		}, nil

	case pixelsFlash != "":
		color, err := neopixel.ParseColor(pixelsFlash)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, b *board.Board) (bool, error) {
			return true, b.NeopixelFlash(ctx, color)
		}, nil

	default:
		if _, err := neopixel.SequenceByName(pixelsSequence, board.DefaultPixelCount); err != nil {
			return nil, err
		}
		opts := board.SequenceOptions{
			FPS:        pixelsFPS,
			Speed:      pixelsSpeed,
			Brightness: pixelsBrightness,
			Repeating:  !pixelsOnce,
		}
		return func(ctx context.Context, b *board.Board) (bool, error) {
			return pixelsOnce, b.NeopixelStartNamedSequence(ctx, pixelsSequence, opts)
		}, nil
	}
}

func runPixels(cmd *cobra.Command, args []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	action, err := parsePixelAction()
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptible(cmd, "turning pixels off")
	defer cancel()

	sess, err := st.connect(ctx, address(args), service.Neopixels)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.report.Err(); err != nil {
		return err
	}

	finite, err := action(ctx, sess.board)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if pixelsColor != "" {
		printPixels(out, sess.board)
	}

	holdCtx := ctx
	if pixelsDuration > 0 {
		var stop context.CancelFunc
		holdCtx, stop = context.WithTimeout(ctx, pixelsDuration)
		defer stop()
	}
	var done func() bool
	if finite {
		done = func() bool { return !sess.board.IsNeopixelAnimating() }
	}
	if err := sess.hold(holdCtx, done); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if m := sess.board.NeopixelMetrics(); m.Written > 0 {
		fmt.Fprintf(out, "frames: %d written, %d superseded, %d failed\n", m.Written, m.Superseded, m.Failed)
	}
	return nil
}

func printPixels(out io.Writer, b *board.Board) {
	colors := b.NeopixelColors()
	parts := make([]string, len(colors))
	for i, c := range colors {
		parts[i] = fmt.Sprintf("%d:%s", i, c)
	}
	fmt.Fprintf(out, "pixels: %s\n", strings.Join(parts, " "))
}
