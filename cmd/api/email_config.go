package main

import (
	"encoding/json"
	"os"

	"extornos/internal/service"

	"github.com/spf13/cobra"
)

func emailConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email-config",
		Short: "Inspect or repair the notification recipients",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current email config, repairing it first if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := service.NewEmailConfigService(a.emailConfigs, a.fallbackEmailConfig(), a.log).Current(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "repair",
		Short: "Collapse duplicate rows into one, keeping the most recent values",
		Long: `Collapse the email config table into its single canonical row.

The most recently updated row wins. When no row exists the defaults from
notification.* in config.yaml are stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := service.NewEmailConfigService(a.emailConfigs, a.fallbackEmailConfig(), a.log).Repair(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	})
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
