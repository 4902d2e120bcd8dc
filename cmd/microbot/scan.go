package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keymitt/microbot/pkg/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for MicroBot devices",
	Long: `Scan for MicroBot Push devices in the vicinity.

Only advertisements carrying the MicroBot service UUID are shown. Use the
printed address with the pair command.`,
	RunE: runScan,
}

var scanDuration time.Duration

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to the config scan_timeout)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := scanner.DefaultOptions()
	opts.Duration = cfg.ScanTimeout
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := newProgressPrinter("Scanning for MicroBot devices", opts.Duration)
	progress.Start()

	s := scanner.NewScanner(logger, nil)
	devices, err := s.Scan(ctx, opts)
	progress.Stop()
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	return displayDevices(devices)
}

func displayDevices(devices map[string]*scanner.Advertisement) error {
	if len(devices) == 0 {
		fmt.Println("No MicroBot devices discovered")
		return nil
	}

	list := make([]*scanner.Advertisement, 0, len(devices))
	for _, adv := range devices {
		list = append(list, adv)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RSSI > list[j].RSSI
	})

	nameColor := color.New(color.FgCyan)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, adv := range list {
		name := adv.LocalName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", nameColor.Sprint(name), adv.Address, adv.RSSI)
	}
	return w.Flush()
}
