package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	goble "github.com/srg/lyfleet/internal/device/go-ble"
	"github.com/srg/lyfleet/pkg/config"
	"github.com/srg/lyfleet/scanner"
	"gopkg.in/yaml.v3"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby thermometers",
	Long: `Listens for advertisements and lists LYWSD02 and LYWSD03MMC thermometers,
strongest signal first.

Examples:
  # Scan for 10 seconds
  lyfleet scan

  # Print a devices: section for the configuration file
  lyfleet scan --duration 30s --yaml >> lyfleet.yaml`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// scanFunc is replaced in tests.
var scanFunc scanner.ScanFunc = goble.Scan

var (
	scanDuration time.Duration
	scanAll      bool
	scanYAML     bool
	scanAllow    []string
	scanBlock    []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertising device, not only thermometers")
	scanCmd.Flags().BoolVar(&scanYAML, "yaml", false, "Output a devices: section for the configuration file")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Only report these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Never report these addresses")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for thermometers", "Scanning")
	progress.Start()
	defer progress.Stop()

	s := scanner.NewScanner(scanFunc, logger)
	found, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:  scanDuration,
		AllowList: scanAllow,
		BlockList: scanBlock,
		All:       scanAll,
	}, progress.SetPhase)
	progress.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanYAML {
		devices := make([]config.DeviceConfig, 0, len(found))
		for _, f := range found {
			if f.Variant == 0 {
				continue
			}
			devices = append(devices, config.DeviceConfig{Address: f.Address, Variant: f.Variant.String()})
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(struct {
			Devices []config.DeviceConfig `yaml:"devices"`
		}{devices}); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(found) == 0 {
		fmt.Fprintln(out, "no thermometers found")
		return nil
	}
	fmt.Fprintf(out, "%-17s  %-12s  %-10s  %5s  %s\n", "ADDRESS", "NAME", "VARIANT", "RSSI", "SEEN")
	fmt.Fprintln(out, strings.Repeat("-", 56))
	for _, f := range found {
		variant := "-"
		if f.Variant != 0 {
			variant = f.Variant.String()
		}
		fmt.Fprintf(out, "%-17s  %-12s  %-10s  %5d  %d\n", f.Address, f.Name, variant, f.RSSI, f.SeenCount)
	}
	return nil
}
