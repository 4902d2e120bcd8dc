package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/keymitt/microbot/pkg/client"
	"github.com/keymitt/microbot/pkg/config"
)

// Device flags shared by the pair/on/off/calibrate commands.
var (
	flagAddress string
	flagToken   string
)

func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagAddress, "address", "a", "", "Device address (overrides config)")
	cmd.Flags().StringVarP(&flagToken, "token", "t", "", "Session token from a previous pairing (overrides config)")
}

// loadConfig reads the --config file when given, defaults otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// newSession builds a device session from config plus flag overrides.
func newSession(cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger) (*client.Session, error) {
	address := cfg.Address
	if flagAddress != "" {
		address = flagAddress
	}
	if address == "" {
		return nil, fmt.Errorf("device address required: use --address or the config file")
	}
	token := cfg.Token
	if flagToken != "" {
		token = flagToken
	}

	return client.NewSession(&client.Options{
		Address:    address,
		Token:      token,
		RetryCount: cfg.RetryCount,
		Timeout:    cfg.ConnectTimeout,
	}, logger)
}
