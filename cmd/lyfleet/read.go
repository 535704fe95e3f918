package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/sensor"
)

const deviceArgNote = `<device> is a device address or an id from the configuration file.`

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device>",
	Short: "Take a live reading",
	Long: fmt.Sprintf(`Connects to the device, waits for one measurement and prints it.

Examples:
  # Read a LYWSD03MMC
  lyfleet read A4:C1:38:12:34:56

  # Read a LYWSD02 as JSON
  lyfleet read E7:2E:00:12:34:56 --variant lywsd02 --json

  # Keep reading every minute
  lyfleet read kitchen --watch 1m

%s`, deviceArgNote),
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readVariant string
	readJSON    bool
	readWatch   time.Duration
)

func init() {
	readCmd.Flags().StringVar(&readVariant, "variant", "", "Device variant (lywsd02 or lywsd03mmc)")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "Output as JSON")
	readCmd.Flags().DurationVar(&readWatch, "watch", 0, "Keep reading at this interval until interrupted")
}

func runRead(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.resolve(args[0], readVariant)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	link := a.link(t)
	out := cmd.OutOrStdout()

	readOnce := func() error {
		r, err := link.Poll(ctx)
		if err != nil {
			return err
		}
		if readJSON {
			return json.NewEncoder(out).Encode(struct {
				Address string    `json:"address"`
				Time    time.Time `json:"time"`
				sensor.Reading
			}{t.Address, time.Now(), r})
		}
		if readWatch > 0 {
			fmt.Fprintf(out, "%s %s\n", time.Now().Format(time.DateTime), formatReading(r))
			return nil
		}
		fmt.Fprintln(out, formatReading(r))
		return nil
	}

	if readWatch <= 0 {
		return readOnce()
	}

	ticker := time.NewTicker(readWatch)
	defer ticker.Stop()
	for {
		if err := readOnce(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.WithError(err).Warn("Reading failed, continuing...")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
