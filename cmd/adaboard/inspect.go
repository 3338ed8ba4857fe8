package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/adaboard/internal/service"
	"github.com/srg/adaboard/pkg/board"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [address]",
	Short: "Show a board's model and the vendor services it supports",
	Long: `Connect to a board, try to enable every Adafruit vendor service and report
which ones the firmware supports. Services are disabled again and the board
is disconnected before the command exits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

var inspectFormat string

func init() {
	resetInspectFlags()
}

func resetInspectFlags() {
	inspectCmd.ResetFlags()
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format (table, json)")
}

// inspectResult is the JSON form of an inspection.
type inspectResult struct {
	Address  string          `json:"address"`
	Model    board.Model     `json:"model"`
	Services []serviceResult `json:"services"`
}

type serviceResult struct {
	Service service.Kind `json:"service"`
	Enabled bool         `json:"enabled"`
	Error   string       `json:"error,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	if !slices.Contains(scanFormats, inspectFormat) {
		return fmt.Errorf("invalid format '%s': must be one of %v", inspectFormat, scanFormats)
	}
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := interruptible(cmd, "cancelling inspection")
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Inspecting board", "Connecting", 0, "Processing results")
	progress.Start()
	defer progress.Stop()

	sess, err := st.connect(ctx, address(args), service.DefaultCatalog().Kinds()...)
	if err != nil {
		return err
	}
	defer sess.Close()
	progress.Callback()("Processing results")

	id, err := sess.board.AccessoryID()
	if err != nil {
		return err
	}
	result := inspectResult{Address: id, Model: sess.report.Model}
	for pair := sess.report.Results.Oldest(); pair != nil; pair = pair.Next() {
		r := serviceResult{Service: pair.Key, Enabled: pair.Value == nil}
		if pair.Value != nil {
			r.Error = FormatUserError(pair.Value)
		}
		result.Services = append(result.Services, r)
	}

	if inspectFormat == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	return displayInspection(cmd.OutOrStdout(), result)
}

func displayInspection(out io.Writer, r inspectResult) error {
	fmt.Fprintf(out, "Address: %s\n", r.Address)
	fmt.Fprintf(out, "Model:   %s (0x%04X, %d pixels)\n\n", r.Model.Name, r.Model.ProductID, r.Model.Pixels)

	failed := color.New(color.FgRed).SprintFunc()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATUS")
	fmt.Fprintln(w, "-------\t------")
	for _, s := range r.Services {
		status := "enabled"
		if !s.Enabled {
			status = failed("unavailable: " + s.Error)
		}
		fmt.Fprintf(w, "%s\t%s\n", s.Service, status)
	}
	return w.Flush()
}
