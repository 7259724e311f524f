package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

func newDigestCommand() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print the stored digest of a secret",
		Long: `Print the lowercase hex SHA-512 digest of a secret, the form kept in the
secret_hash attribute of a credential record.

The secret is taken from --secret or, when the flag is absent, from the
first line of standard input.

Examples:
  ddnsweaver digest --secret 's3cret'
  printf '%s' "$SECRET" | ddnsweaver digest`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("secret") {
				var err error
				if secret, err = readSecret(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if secret == "" {
				return errors.New("secret must not be empty")
			}
			fmt.Fprintln(cmd.OutOrStdout(), credential.Digest(secret))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "secret to hash (read from stdin when omitted)")
	return cmd
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// generateSecret returns 32 random bytes hex-encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
