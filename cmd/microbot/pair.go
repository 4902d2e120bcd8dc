package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// pairCmd runs the initial pairing handshake and prints the token.
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with a MicroBot and obtain a session token",
	Long: `Run the initial pairing handshake.

The MicroBot only releases a token after its physical button is pressed, so
this command waits until you touch the device (or the timeout expires).
Persist the printed token and pass it to later commands with --token.`,
	RunE: runPair,
}

var pairTimeout time.Duration

func init() {
	addDeviceFlags(pairCmd)
	pairCmd.Flags().DurationVar(&pairTimeout, "timeout", 0, "Give up waiting for the button press after this long (0 = wait forever)")
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	session, err := newSession(cmd, cfg, logger)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx := context.Background()
	if pairTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pairTimeout)
		defer cancel()
	}

	fmt.Println(color.YellowString("Touch the button on the MicroBot when prompted to release a token."))

	progress := newProgressPrinter("Pairing", 0)
	progress.Start()
	token, err := session.Pair(ctx)
	progress.Stop()
	session.Disconnect()
	if err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}

	fmt.Printf("Paired with %s\n", session.Name())
	fmt.Printf("Token: %s\n", color.GreenString(token))
	return nil
}
