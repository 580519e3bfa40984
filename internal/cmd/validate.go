package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtconnect-org/agent/internal/config"
	"github.com/mtconnect-org/agent/internal/devicefile"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the agent config and device model without starting it",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&devicesPath, "devices", "devices.toml", "path to the device-model TOML file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m, err := devicefile.Load(devicesPath)
	if err != nil {
		return fmt.Errorf("loading device model: %w", err)
	}

	fmt.Printf("config OK: %d adapter(s), buffer capacity %d\n", len(cfg.Adapters), cfg.BufferCapacity())
	fmt.Printf("device model OK: %d device(s)\n", len(m.Devices()))
	return nil
}
