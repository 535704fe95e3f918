package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/export"
	"github.com/srg/lyfleet/internal/fleet"
	"github.com/srg/lyfleet/internal/groutine"
	"github.com/srg/lyfleet/internal/publish"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the configured fleet",
	Long: `Polls every device from the configuration file on a schedule. Each poll updates
the device quality score; failing devices are held back and a radio reset is
issued when too many of them fail at once.

Every state update is printed, appended to --csv when given and published to
NATS when nats.url is configured.

Examples:
  # Poll forever with the configured interval
  lyfleet run -c lyfleet.yaml

  # Poll once and exit
  lyfleet run -c lyfleet.yaml --once

  # Poll every 2 minutes, keep a CSV log
  lyfleet run -c lyfleet.yaml --interval 2m --csv states.csv`,
	Args: cobra.NoArgs,
	RunE: runFleet,
}

var (
	runOnce     bool
	runInterval time.Duration
	runCSV      string
	runQuiet    bool
)

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Poll every device once and exit")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Poll interval (default: fleet.poll_interval)")
	runCmd.Flags().StringVar(&runCSV, "csv", "", "Append state updates to this CSV file")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not print state updates")
}

func runFleet(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if len(a.cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured; add them under devices: in the configuration file")
	}
	interval := a.cfg.Fleet.PollInterval
	if runInterval > 0 {
		interval = runInterval
	}
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	mgr, err := a.newManager()
	if err != nil {
		return err
	}

	sinks, closeSinks, err := a.sinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeSinks()

	var wg sync.WaitGroup
	groutine.GoWait(ctx, &wg, "fleet-sinks", func(ctx context.Context) {
		sinks.run(ctx, mgr.Updates())
	})

	if runOnce {
		err = mgr.PollAll(ctx)
		// let the sinks catch up with the last updates
		sinks.drain(mgr.Updates())
		cancel()
		wg.Wait()
		return err
	}

	wait := mgr.Start(ctx, interval)
	wait()
	wg.Wait()
	if errors.Is(ctx.Err(), context.Canceled) {
		a.logger.Info("Interrupted, fleet stopped")
	}
	return nil
}

// newManager builds the fleet from the configuration.
func (a *app) newManager() (*fleet.Manager, error) {
	mgr, err := fleet.NewManager(fleet.Options{
		Policy: a.cfg.Fleet.Policy,
		Factory: func(address string, variant device.Variant) (fleet.Reader, error) {
			return a.link(target{Address: address, ID: address, Variant: variant}), nil
		},
		Control:     a.control,
		SettleDelay: a.cfg.Radio.SettleDelay,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range a.cfg.Devices {
		v, err := device.ParseVariant(d.Variant)
		if err != nil {
			return nil, err
		}
		if err := mgr.Subscribe(d.Address, d.ID, v); err != nil {
			return nil, err
		}
	}
	a.logger.WithField("devices", mgr.Len()).Info("Fleet configured")
	return mgr, nil
}

// stateSinks fans every state update out to the console, CSV and NATS.
type stateSinks struct {
	console io.Writer
	csv     *export.StateWriter
	pub     chan fleet.State
	policy  fleet.Policy
	logger  *logrus.Logger
	mu      sync.Mutex
}

func (a *app) sinks(console io.Writer) (*stateSinks, func(), error) {
	s := &stateSinks{policy: a.cfg.Fleet.Policy, logger: a.logger}
	if !runQuiet {
		s.console = console
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if runCSV != "" {
		info, statErr := os.Stat(runCSV)
		header := statErr != nil || info.Size() == 0
		f, err := os.OpenFile(runCSV, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", runCSV, err)
		}
		closers = append(closers, func() { _ = f.Close() })
		s.csv = export.NewStateWriter(f, header)
	}

	if a.cfg.NATS.URL != "" {
		nc, err := publish.Connect(a.cfg.NATS.URL, a.logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pub := publish.New(nc, a.cfg.NATS.SubjectPrefix, nil, a.logger)
		s.pub = make(chan fleet.State, fleet.DefaultUpdatesBuffer)

		pubCtx, stop := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		groutine.GoWait(pubCtx, &wg, "nats-publisher", func(ctx context.Context) {
			pub.Run(ctx, s.pub)
		})
		closers = append(closers, func() {
			close(s.pub)
			wg.Wait()
			stop()
			if err := nc.Drain(); err != nil {
				a.logger.WithError(err).Debug("NATS drain failed")
			}
		})
	}
	return s, closeAll, nil
}

func (s *stateSinks) run(ctx context.Context, updates <-chan fleet.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-updates:
			s.handle(st)
		}
	}
}

// drain handles whatever is buffered without blocking.
func (s *stateSinks) drain(updates <-chan fleet.State) {
	for {
		select {
		case st := <-updates:
			s.handle(st)
		default:
			return
		}
	}
}

func (s *stateSinks) handle(st fleet.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.console != nil {
		fmt.Fprintln(s.console, formatState(st, s.policy, time.Now()))
	}
	if s.csv != nil {
		if err := s.csv.Write(st); err != nil {
			s.logger.WithError(err).Warn("CSV write failed")
		}
	}
	if s.pub != nil {
		select {
		case s.pub <- st:
		default:
			s.logger.WithField("id", st.ID).Warn("Publisher is behind, dropping state update")
		}
	}
}
