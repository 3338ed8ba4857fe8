package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/adaboard/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Adafruit boards",
	Long: `Scan for Adafruit Bluefruit boards in the vicinity.

Boards are recognized by the Adafruit manufacturer data in their advertisement
or by an advertised vendor service. The model is resolved from the product id,
which decides the number of NeoPixels and the sensor orientation.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
)

var scanFormats = []string{"table", "json"}

func init() {
	resetScanFlags()
}

// resetScanFlags (re)declares the scan flags with their defaults.
func resetScanFlags() {
	scanCmd.ResetFlags()
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default scan_timeout from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show boards with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide boards with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, _ []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	format := scanFormat
	if format == "" {
		format = "table"
		if st.cfg.OutputFormat == "json" {
			format = "json"
		}
	}
	if !slices.Contains(scanFormats, format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, scanFormats)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := st.cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	dev, err := st.scanningDevice()
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	s := scanner.New(dev, st.logger)

	ctx, cancel := interruptible(cmd, "cancelling scan")
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for boards", "Scanning", duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	boards, err := s.Scan(ctx, &scanner.Options{
		Duration:        duration,
		DuplicateFilter: scanNoDuplicate,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	if format == "json" {
		return displayBoardsJSON(cmd.OutOrStdout(), boards)
	}
	return displayBoardsTable(cmd.OutOrStdout(), boards)
}

func displayBoardsTable(out io.Writer, boards []scanner.Found) error {
	if len(boards) == 0 {
		fmt.Fprintln(out, "No boards discovered")
		return nil
	}

	unknown := color.New(color.FgYellow).SprintFunc()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tMODEL\tPIXELS")
	fmt.Fprintln(w, "----\t-------\t----\t-----\t------")

	for _, b := range boards {
		name := b.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		model := b.Model.Name
		if !b.Recognized {
			model = unknown(fmt.Sprintf("%s (0x%04X)", model, b.Model.ProductID))
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%d\n", name, b.Address, b.RSSI, model, b.Model.Pixels)
	}
	return w.Flush()
}

func displayBoardsJSON(out io.Writer, boards []scanner.Found) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if boards == nil {
		boards = []scanner.Found{}
	}
	if err := encoder.Encode(boards); err != nil {
		return fmt.Errorf("encoding scan results: %w", err)
	}
	return nil
}
