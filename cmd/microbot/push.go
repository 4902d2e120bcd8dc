package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keymitt/microbot/pkg/client"
)

// onCmd pushes the actuator into the on position.
var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Push the button on",
	Long: `Connect to the MicroBot, trigger a push, and disconnect.

The driver never fails a push loudly; check the printed actuator state to
see whether the push went through.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPush(cmd, true)
	},
}

// offCmd pushes the actuator into the off position.
var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Push the button off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPush(cmd, false)
	},
}

func init() {
	addDeviceFlags(onCmd)
	addDeviceFlags(offCmd)
}

func runPush(cmd *cobra.Command, on bool) error {
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
	if on {
		session.PushOn(ctx)
	} else {
		session.PushOff(ctx)
	}

	printState(session)
	return nil
}

func printState(session *client.Session) {
	state := session.State()
	c := color.New(color.FgYellow)
	switch state {
	case client.StateOn:
		c = color.New(color.FgGreen)
	case client.StateOff:
		c = color.New(color.FgRed)
	}
	fmt.Printf("Actuator state: %s\n", c.Sprint(state))
}
