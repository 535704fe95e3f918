package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/pkg/config"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Power cycle the Bluetooth adapter",
	Long: `Turns the Bluetooth adapter off and on again, optionally restarting the
Bluetooth service. Needs root or CAP_NET_ADMIN.

Examples:
  lyfleet reset
  lyfleet reset --adapter hci1 --backend hci
  lyfleet reset --disconnect A4:C1:38:12:34:56`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var (
	resetBackend    string
	resetAdapter    string
	resetSettle     time.Duration
	resetRestart    bool
	resetDisconnect string
)

func init() {
	resetCmd.Flags().StringVar(&resetBackend, "backend", "", "Radio control backend: dbus or hci (default: radio.backend)")
	resetCmd.Flags().StringVar(&resetAdapter, "adapter", "", "Adapter name (default: radio.adapter)")
	resetCmd.Flags().DurationVar(&resetSettle, "settle", 0, "Delay after each power transition (default: radio.settle_delay)")
	resetCmd.Flags().BoolVar(&resetRestart, "restart-service", false, "Also restart the Bluetooth service")
	resetCmd.Flags().StringVar(&resetDisconnect, "disconnect", "", "Only force-disconnect this device address")
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if resetBackend != "" {
		cfg.Radio.Backend = resetBackend
	}
	if resetAdapter != "" {
		cfg.Radio.Adapter = resetAdapter
	}
	if resetRestart {
		cfg.Radio.RestartService = true
	}
	if resetSettle > 0 {
		cfg.Radio.SettleDelay = resetSettle
	}
	// an explicit reset is not subject to the cooldown
	cfg.Radio.Cooldown = 0
	if cfg.Radio.Backend == config.BackendNone {
		return fmt.Errorf("%w: radio control is disabled (radio.backend: none)", device.ErrUnsupported)
	}
	cmd.SilenceUsage = true

	control, err := newRadioControl(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	if resetDisconnect != "" {
		if err := control.ForceDisconnect(ctx, resetDisconnect); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s disconnected\n", resetDisconnect)
		return nil
	}

	res, err := control.PowerCycle(ctx, cfg.Radio.SettleDelay)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "off: %s\non:  %s\n", res.Off, res.On)
	if res.Restarted {
		fmt.Fprintln(out, "bluetooth service restarted")
	}
	return nil
}
