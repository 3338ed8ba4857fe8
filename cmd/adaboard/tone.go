package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/service"
)

// toneCmd represents the tone command
var toneCmd = &cobra.Command{
	Use:   "tone [address]",
	Short: "Play a tone on the board's speaker",
	Long: `Play a tone of the given frequency on the board's tone generator.

The tone plays for --duration, or until Ctrl+C when the duration is 0, and is
silenced before the command exits.`,
	Example: `  adaboard tone F0:12:34:56:78:9A --frequency 440 --duration 500ms`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runTone,
}

var (
	toneFrequency uint16
	toneDuration  time.Duration
)

func init() {
	resetToneFlags()
}

func resetToneFlags() {
	toneCmd.ResetFlags()
	toneCmd.Flags().Uint16VarP(&toneFrequency, "frequency", "f", 440, "Tone frequency in Hz")
	toneCmd.Flags().DurationVarP(&toneDuration, "duration", "d", time.Second, "Tone length (0 plays until Ctrl+C)")
}

func runTone(cmd *cobra.Command, args []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if toneFrequency == 0 {
		return fmt.Errorf("--frequency must be > 0")
	}
	if toneDuration < 0 {
		return fmt.Errorf("--duration must be >= 0")
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptible(cmd, "stopping tone")
	defer cancel()

	sess, err := st.connect(ctx, address(args), service.ToneGenerator)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.report.Err(); err != nil {
		return err
	}

	if err := sess.board.ToneGeneratorStartPlaying(ctx, toneFrequency, toneDuration); err != nil {
		return err
	}
	if toneDuration > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Playing %d Hz for %s\n", toneFrequency, toneDuration)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Playing %d Hz, press Ctrl+C to stop\n", toneFrequency)
	}

	holdCtx := ctx
	if toneDuration > 0 {
		var stop context.CancelFunc
		holdCtx, stop = context.WithTimeout(ctx, toneDuration)
		defer stop()
	}
	holdErr := sess.hold(holdCtx, nil)
	if holdErr != nil && !errors.Is(holdErr, context.Canceled) {
		return holdErr
	}

	stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	return sess.board.ToneGeneratorStopPlaying(stopCtx)
}
