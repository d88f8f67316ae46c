package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"multinome/config"
	"multinome/debug"
	"multinome/grid"
	"multinome/midi"
	"multinome/sequencer"
	"multinome/theme"
	"multinome/tui"
)

var opts struct {
	configPath  string
	bpm         int
	mode        string
	out         string
	in          string
	debug       bool
	headless    bool
	writeConfig bool
}

var rootCmd = &cobra.Command{
	Use:          "multinome",
	Short:        "Multi-track MIDI step sequencer for monome and Launchpad grids",
	Long:         `Composes every attached grid into one surface and plays it into MIDI outputs.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if opts.writeConfig {
			return writeConfig(cfg)
		}
		return run(cfg)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/multinome/config.json)")
	flags.IntVar(&opts.bpm, "bpm", 120, "tempo in BPM")
	flags.StringVar(&opts.mode, "mode", "internal", "clock mode: internal, send or receive")
	flags.StringVar(&opts.out, "out", "", "default MIDI output port")
	flags.StringVar(&opts.in, "in", "", "MIDI input port for external clock")
	flags.BoolVar(&opts.debug, "debug", false, "write a debug log to ~/.config/multinome/debug.log")
	flags.BoolVar(&opts.headless, "headless", false, "run without the terminal UI")
	flags.BoolVar(&opts.writeConfig, "write-config", false, "write the effective config to the config file and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flags that were set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("bpm") {
		cfg.Clock.BPM = opts.bpm
	}
	if flags.Changed("mode") {
		cfg.Clock.Mode = opts.mode
	}
	if flags.Changed("out") {
		cfg.Output.PortName = opts.out
	}
	if flags.Changed("in") {
		cfg.Clock.InPortName = opts.in
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	return cfg, nil
}

// writeConfig saves cfg where loadConfig would read it from
func writeConfig(cfg *config.Config) error {
	var err error
	path := opts.configPath
	if path == "" {
		err = cfg.Save()
		path, _ = config.ConfigPath()
	} else {
		err = cfg.SaveFile(path)
	}
	if err != nil {
		return errors.Wrap(err, "writing config")
	}
	fmt.Println("wrote", path)
	return nil
}

func run(cfg *config.Config) error {
	if cfg.Debug {
		if err := debug.Enable(""); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}
	defer midi.CloseDriver()

	mode, err := sequencer.ParseClockMode(cfg.Clock.Mode)
	if err != nil {
		return err
	}

	router := midi.NewRouter(midi.PortOpener{}, cfg.Output.PortName)
	defer router.Close()

	mgr := sequencer.NewManager(sequencer.NewState(cfg.Sequencer.Tracks), router)
	mgr.SetBPM(cfg.Clock.BPM)
	mgr.SetSwing(cfg.Clock.Swing)
	mgr.SetClockMode(mode)
	// Runs before router.Close so the last gate reaches the synth
	defer mgr.Flush()

	conns := grid.Connectors{}
	var watchers []grid.Watcher
	if cfg.Grids.SerialOSC {
		conns[grid.TransportSerialOSC] = &grid.SerialOSCConnector{Host: cfg.Grids.SerialOSCHost}
		watchers = append(watchers, &grid.SerialOSCWatcher{Host: cfg.Grids.SerialOSCHost, Port: cfg.Grids.SerialOSCPort})
	}
	if cfg.Grids.Launchpad {
		conns[grid.TransportLaunchpad] = grid.LaunchpadConnector{}
		watchers = append(watchers, &grid.LaunchpadWatcher{})
	}

	gridOpts := grid.DefaultOptions()
	gridOpts.Stabilize = cfg.Grids.StabilizeDelay()
	gridOpts.Flash = cfg.Grids.FlashDuration()
	composer := grid.NewComposer(mgr, conns, gridOpts)
	mgr.SetDisplay(composer)

	clockIn := midi.NewClockInput()
	defer clockIn.Close()
	if cfg.Clock.InPortName != "" {
		if err := clockIn.Open(cfg.Clock.InPortName); err != nil {
			debug.Warn("main", err, "clock input")
			fmt.Fprintf(os.Stderr, "clock input: %v\n", err)
		} else {
			mgr.SetInPort(cfg.Clock.InPortName)
		}
	}

	store, err := sequencer.DefaultStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan grid.Event, 16)

	for _, w := range watchers {
		g.Go(func() error {
			// A missing daemon or driver only loses that transport
			if err := w.Run(ctx, events); err != nil {
				debug.Warn("main", err, "device watcher")
			}
			return nil
		})
	}
	g.Go(func() error {
		return composer.Run(ctx, events)
	})
	g.Go(func() error {
		return sequencer.NewClock(mgr, router, clockIn.Events()).Run(ctx)
	})

	if opts.headless {
		fmt.Println("multinome running headless, Ctrl-C to quit")
	} else {
		g.Go(func() error {
			defer cancel()
			m := tui.NewModel(mgr, composer, store, clockIn, theme.Default())
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "terminal UI")
			}
			return nil
		})
	}

	return g.Wait()
}
