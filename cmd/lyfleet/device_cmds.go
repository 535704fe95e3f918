package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/device"
)

var batteryCmd = &cobra.Command{
	Use:   "battery <device>",
	Short: "Print the battery charge",
	Long: fmt.Sprintf(`Prints the battery charge in percent. LYWSD03MMC devices report a voltage,
the charge is estimated from it and may fall outside 0..100.

%s`, deviceArgNote),
	Args: cobra.ExactArgs(1),
	RunE: runBattery,
}

var unitsCmd = &cobra.Command{
	Use:   "units <device> [C|F]",
	Short: "Get or set the display unit",
	Long: fmt.Sprintf(`Prints the display unit, or switches it when C or F is given.

Examples:
  lyfleet units kitchen
  lyfleet units kitchen F

%s`, deviceArgNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runUnits,
}

var clockCmd = &cobra.Command{
	Use:   "clock <device>",
	Short: "Get or set the device clock",
	Long: fmt.Sprintf(`Prints the device clock and timezone offset. LYWSD03MMC devices only keep
their runtime since boot; the boot time is printed alongside.

With --set the clock of a LYWSD02 is set to the current time. LYWSD03MMC
devices have no visible clock and ignore it.

Examples:
  lyfleet clock E7:2E:00:12:34:56 --variant lywsd02
  lyfleet clock E7:2E:00:12:34:56 --variant lywsd02 --set --tz 2

%s`, deviceArgNote),
	Args: cobra.ExactArgs(1),
	RunE: runClock,
}

var (
	deviceVariant string
	clockSet      bool
	clockTZ       int
)

func init() {
	for _, cmd := range []*cobra.Command{batteryCmd, unitsCmd, clockCmd} {
		cmd.Flags().StringVar(&deviceVariant, "variant", "", "Device variant (lywsd02 or lywsd03mmc)")
	}
	clockCmd.Flags().BoolVar(&clockSet, "set", false, "Set the device clock to now")
	clockCmd.Flags().IntVar(&clockTZ, "tz", 0, "Timezone offset in hours written with --set (default: local offset)")
}

func runBattery(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.resolve(args[0], deviceVariant)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	pct, err := a.link(t).Battery(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.1f%%\n", pct)
	return nil
}

func runUnits(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.resolve(args[0], deviceVariant)
	if err != nil {
		return err
	}

	var unit string
	if len(args) == 2 {
		unit = strings.ToUpper(args[1])
		if unit != "C" && unit != "F" {
			return fmt.Errorf("%w: unit must be C or F, got %q", device.ErrValue, args[1])
		}
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	link := a.link(t)
	if unit != "" {
		if err := link.SetUnits(ctx, unit); err != nil {
			return err
		}
		a.logger.WithField("unit", unit).Info("Display unit changed")
		return nil
	}

	unit, err = link.Units(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), unit)
	return nil
}

func runClock(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	t, err := a.resolve(args[0], deviceVariant)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	link := a.link(t)
	out := cmd.OutOrStdout()

	if clockSet {
		if cmd.Flags().Changed("tz") {
			link.SetTZOffset(clockTZ)
		}
		if t.Variant == device.VariantRich {
			fmt.Fprintln(out, "device has no clock, nothing to set")
			return nil
		}
		now := time.Now()
		if err := link.SetClock(ctx, now); err != nil {
			return err
		}
		fmt.Fprintf(out, "clock set to %s (tz %+d)\n", now.Format(time.DateTime), link.TZOffset())
		return nil
	}

	return link.Session(ctx, func(ctx context.Context) error {
		clk, tz, err := link.Clock(ctx)
		if err != nil {
			return err
		}
		if t.Variant != device.VariantRich {
			fmt.Fprintf(out, "time: %s\ntz:   %+d\n", clk.Format(time.DateTime), tz)
			return nil
		}
		start, err := link.StartTime(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "runtime: %s\nstarted: %s\n",
			time.Duration(clk.Unix())*time.Second, start.Local().Format(time.DateTime))
		return nil
	})
}
