package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/trigger"
)

func newTriggerCommand() *cobra.Command {
	var (
		envFile     string
		logLevel    string
		storeSecret bool
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Send one update request to the server",
		Long: `Send a single update request carrying KEY and SECRET to URL.

Values come from the environment (KEY, SECRET, URL, optional TIMEOUT), each
of KEY, SECRET and URL also accepting a _FILE variant. A .env file is read
first without overriding variables already set. When SECRET is unset the
secret is looked up in the OS keyring under service "ddnsweaver".

Run it from cron or a systemd timer; it exits non-zero when the update was
not accepted.

Examples:
  # Store the secret once, then run without SECRET in the environment
  SECRET=s3cret KEY=home URL=https://ddns.example.com/update ddnsweaver trigger --store-secret
  KEY=home URL=https://ddns.example.com/update ddnsweaver trigger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := clientLogger(logLevel)

			cfg, err := trigger.LoadConfig(envFile)
			if err != nil {
				return err
			}

			if storeSecret {
				if err := trigger.StoreSecret(cfg.Key, cfg.Secret); err != nil {
					return err
				}
				logger.Info("secret saved to keyring")
			}

			reply, err := trigger.Run(cmd.Context(), cfg, trigger.WithLogger(logger))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&storeSecret, "store-secret", false, "save SECRET to the OS keyring for later runs")
	return cmd
}
