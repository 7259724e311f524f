package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
	"gitlab.bluewillows.net/root/ddnsweaver/internal/store"
)

func newProvisionCommand() *cobra.Command {
	var (
		configPath string
		key        string
		domain     string
		zoneID     string
		secret     string
		generate   bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or replace a credential record in the configured store",
		Long: `Write a credential record to the store selected by the service
configuration (DDNSWEAVER_STORE_*). An existing record for the key is
replaced and its last known address cleared, so the next update always
writes DNS.

The secret is taken from --secret, generated with --generate-secret (and
printed once), or read from the first line of standard input.

Examples:
  ddnsweaver provision --key home --domain home.example.com --zone Z123 --generate-secret
  printf '%s' "$SECRET" | ddnsweaver provision --key home --domain home.example.com --zone example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := clientLogger(cfg.LogLevel())

			switch {
			case generate && cmd.Flags().Changed("secret"):
				return errors.New("use either --secret or --generate-secret")
			case generate:
				if secret, err = generateSecret(); err != nil {
					return err
				}
			case !cmd.Flags().Changed("secret"):
				if secret, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if secret == "" {
				return errors.New("secret must not be empty")
			}

			record := credential.Record{
				Key:        key,
				SecretHash: credential.Digest(secret),
				Domain:     domain,
				ZoneID:     zoneID,
			}
			if err := record.Validate(); err != nil {
				return err
			}

			s, closer, err := store.Open(cmd.Context(), cfg.Store(), logger)
			if err != nil {
				return fmt.Errorf("opening credential store: %w", err)
			}
			defer closeQuietly(logger, "credential store", closer)

			if err := s.Put(cmd.Context(), record); err != nil {
				return fmt.Errorf("writing credential %q: %w", key, err)
			}

			logger.Info("credential provisioned",
				slog.String("key", key),
				slog.String("domain", domain),
				slog.String("zone_id", zoneID),
			)
			if generate {
				fmt.Fprintln(cmd.OutOrStdout(), secret)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	cmd.Flags().StringVar(&key, "key", "", "client key (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "record name the client updates (required)")
	cmd.Flags().StringVar(&zoneID, "zone", "", "provider zone identifier (required)")
	cmd.Flags().StringVar(&secret, "secret", "", "client secret (read from stdin when omitted)")
	cmd.Flags().BoolVar(&generate, "generate-secret", false, "generate a random secret and print it")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("zone")

	return cmd
}
