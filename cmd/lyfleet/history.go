package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/export"
	"github.com/srg/lyfleet/internal/sensor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var historyCmd = &cobra.Command{
	Use:   "history <device>",
	Short: "Download the hourly min/max history as CSV",
	Long: fmt.Sprintf(`Downloads the stored hourly min/max records and writes them as CSV.

Examples:
  # Print the whole history
  lyfleet history A4:C1:38:12:34:56

  # Save records from index 120 on
  lyfleet history kitchen --from 120 -o kitchen.csv

%s`, deviceArgNote),
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var (
	historyVariant string
	historyOutput  string
	historyFrom    int64
)

func init() {
	historyCmd.Flags().StringVar(&historyVariant, "variant", "", "Device variant (lywsd02 or lywsd03mmc)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Write CSV to file instead of stdout")
	historyCmd.Flags().Int64Var(&historyFrom, "from", -1, "Move the history cursor to this record index first")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.resolve(args[0], historyVariant)
	if err != nil {
		return err
	}
	if historyFrom > int64(^uint32(0)) {
		return fmt.Errorf("--from %d is out of range", historyFrom)
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var out io.Writer = cmd.OutOrStdout()
	if historyOutput != "" {
		f, err := os.Create(historyOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", historyOutput, err)
		}
		defer f.Close()
		out = f
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Downloading history from %s", t.Address), "Connecting")
	progress.Start()
	defer progress.Stop()

	link := a.link(t)
	var records *orderedmap.OrderedMap[uint32, sensor.HistoryRecord]
	err = link.Session(ctx, func(ctx context.Context) error {
		if historyFrom >= 0 {
			if err := link.SetHistoryIndex(ctx, uint32(historyFrom)); err != nil {
				return err
			}
		}
		progress.SetPhase("Waiting for records")
		n := 0
		var err error
		records, err = link.History(ctx, func(sensor.HistoryRecord) {
			n++
			progress.SetPhase(fmt.Sprintf("%d records", n))
		})
		return err
	})
	progress.Stop()
	if err != nil {
		return err
	}

	a.logger.WithField("records", records.Len()).Info("History downloaded")
	return export.WriteHistory(out, records)
}
