package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single background sweep and print its result",
}

var sweepHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every running worker gateway once and restart unhealthy ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := wire(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.monitor.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var sweepCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove workers stopped longer than the retention window and prune images",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := wire(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.reaper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	sweepCmd.AddCommand(sweepHealthCmd)
	sweepCmd.AddCommand(sweepCleanupCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
