// Command miditest pokes at MIDI ports and grid discovery without starting
// the sequencer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	"golang.org/x/sync/errgroup"

	"multinome/grid"
	"multinome/midi"
)

var rootCmd = &cobra.Command{
	Use:          "miditest",
	Short:        "MIDI and grid diagnostics",
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List MIDI ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("(waiting up to %v...)\n", midi.ListTimeout)
		ins, outs, err := midi.Ports()
		if err != nil {
			if errors.Cause(err) == midi.ErrListTimeout {
				fmt.Println("CoreMIDI is hung. Fix: sudo killall coreaudiod midiserver")
			}
			return err
		}
		fmt.Println("=== MIDI Input Ports ===")
		for i, p := range ins {
			fmt.Printf("  %d: %s%s\n", i, p.String(), launchpadTag(p.String()))
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range outs {
			fmt.Printf("  %d: %s%s\n", i, p.String(), launchpadTag(p.String()))
		}
		return nil
	},
}

func launchpadTag(name string) string {
	if midi.IsLaunchpad(name) {
		return "  <- launchpad"
	}
	return ""
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <input port>",
	Short: "Print every message arriving on an input, clock included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := midi.FindIn(args[0])
		if err != nil {
			return err
		}
		pulses := 0
		stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
			if ev, ok := midi.ParseClock(msg); ok {
				if ev == midi.ClockPulse {
					pulses++
					if pulses%24 == 0 {
						fmt.Printf("[%6dms] clock: %d quarter notes\n", timestampms, pulses/24)
					}
					return
				}
				fmt.Printf("[%6dms] %s\n", timestampms, ev)
				return
			}
			fmt.Printf("[%6dms] % X  %s\n", timestampms, []byte(msg), msg.String())
		}, gomidi.UseTimeCode(), gomidi.UseSysEx())
		if err != nil {
			return errors.Wrapf(err, "listening on %s", args[0])
		}
		defer stop()

		fmt.Printf("Monitoring %s, Ctrl+C to exit\n", in.String())
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		<-ctx.Done()
		return nil
	},
}

var clockOpts struct {
	bpm     float64
	seconds int
}

var clockCmd = &cobra.Command{
	Use:   "clock <output port>",
	Short: "Send start, 24 PPQN clock and stop to an output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if clockOpts.bpm <= 0 {
			return errors.Errorf("invalid bpm %v", clockOpts.bpm)
		}
		out, err := midi.PortOpener{}.Open(args[0])
		if err != nil {
			return err
		}
		defer out.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(clockOpts.seconds)*time.Second)
		defer cancelTimeout()

		pulse := time.Duration(float64(time.Minute) / clockOpts.bpm / 24)
		ticker := time.NewTicker(pulse)
		defer ticker.Stop()

		fmt.Printf("Clock at %.1f bpm to %s for %ds\n", clockOpts.bpm, args[0], clockOpts.seconds)
		if err := out.Send([]byte{byte(midi.ClockStart)}); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return out.Send([]byte{byte(midi.ClockStop)})
			case <-ticker.C:
				if err := out.Send([]byte{byte(midi.ClockPulse)}); err != nil {
					return err
				}
			}
		}
	},
}

var gridsOpts struct {
	host    string
	port    int
	seconds int
}

var gridsCmd = &cobra.Command{
	Use:   "grids",
	Short: "Watch serialosc and MIDI for grid controllers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(gridsOpts.seconds)*time.Second)
		defer cancelTimeout()

		events := make(chan grid.Event)
		watchers := []grid.Watcher{
			&grid.SerialOSCWatcher{Host: gridsOpts.host, Port: gridsOpts.port},
			&grid.LaunchpadWatcher{PollRate: time.Second},
		}

		g, ctx := errgroup.WithContext(ctx)
		for _, w := range watchers {
			g.Go(func() error { return w.Run(ctx, events) })
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					fmt.Printf("%-8s %-10s %-20s %s\n", ev.Kind, ev.Transport, ev.ID, describe(ev.Discovery))
				}
			}
		})
		fmt.Printf("Watching for %ds...\n", gridsOpts.seconds)
		return g.Wait()
	},
}

func describe(d grid.Discovery) string {
	var parts []string
	if d.Type != "" {
		parts = append(parts, d.Type)
	}
	if d.Port != 0 {
		parts = append(parts, fmt.Sprintf("port %d", d.Port))
	}
	return strings.Join(parts, ", ")
}

func init() {
	clockCmd.Flags().Float64Var(&clockOpts.bpm, "bpm", 120, "tempo in BPM")
	clockCmd.Flags().IntVar(&clockOpts.seconds, "seconds", 10, "how long to run")

	gridsCmd.Flags().StringVar(&gridsOpts.host, "host", "127.0.0.1", "serialosc host")
	gridsCmd.Flags().IntVar(&gridsOpts.port, "port", 12002, "serialosc port")
	gridsCmd.Flags().IntVar(&gridsOpts.seconds, "seconds", 10, "how long to watch")

	rootCmd.AddCommand(listCmd, monitorCmd, clockCmd, gridsCmd)
}

func main() {
	defer midi.CloseDriver()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
