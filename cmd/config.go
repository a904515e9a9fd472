package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/rashplayer/internal/config"
	"github.com/andresmejia3/rashplayer/internal/profile"
	"github.com/spf13/cobra"
)

var configWrite string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if configWrite != "" {
			if err := config.Save(configWrite, Cfg); err != nil {
				return fmt.Errorf("failed to write %s: %w", configWrite, err)
			}
			fmt.Fprintf(os.Stderr, "✅ Configuration written to %s\n", configWrite)
			return nil
		}
		b, err := config.Encode(Cfg)
		if err != nil {
			return err
		}
		os.Stdout.Write(b)
		fmt.Printf("# profiles: %v\n", profile.Names())
		return nil
	},
}

func init() {
	configCmd.Flags().StringVarP(&configWrite, "write", "w", "", "Write the configuration to this file instead of printing it")
	rootCmd.AddCommand(configCmd)
}
