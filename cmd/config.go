package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect reframe configuration",
}

var configSampleCmd = &cobra.Command{
	Use:         "sample",
	Short:       "Print a commented sample config.toml",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.Sample())
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		data, err := cfg.Encode()
		if err != nil {
			utils.ShowError("Failed to encode config", err, nil)
			return err
		}
		if cfgFound {
			fmt.Fprintf(os.Stderr, "📄 Loaded from %s\n", cfgPath)
		} else {
			fmt.Fprintf(os.Stderr, "📄 No config at %s, using defaults\n", cfgPath)
		}
		os.Stdout.Write(data)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSampleCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
