package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// calibrateCmd applies push mode, depth, and duration settings.
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate push mode, depth, and duration",
	Long: `Apply actuator calibration: push mode (normal, invert, toggle), push
depth as a percentage, and push duration.

Unset flags fall back to the calibration section of the config file.`,
	RunE: runCalibrate,
}

var (
	calibrateMode     string
	calibrateDepth    int
	calibrateDuration time.Duration
)

func init() {
	addDeviceFlags(calibrateCmd)
	calibrateCmd.Flags().StringVarP(&calibrateMode, "mode", "m", "", "Push mode: normal, invert, or toggle")
	calibrateCmd.Flags().IntVarP(&calibrateDepth, "depth", "d", -1, "Push depth in percent (0-100)")
	calibrateCmd.Flags().DurationVar(&calibrateDuration, "duration", -1, "Push duration (e.g. 1s, 500ms)")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
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

	mode := cfg.Calibration.Mode
	if calibrateMode != "" {
		mode = calibrateMode
	}
	depth := cfg.Calibration.Depth
	if calibrateDepth >= 0 {
		depth = calibrateDepth
	}
	duration := cfg.Calibration.Duration
	if calibrateDuration >= 0 {
		duration = calibrateDuration
	}

	session.Calibrate(context.Background(), depth, duration, mode)
	session.Disconnect()
	return nil
}
