package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loglens/loglens/internal/auth"
)

func newHashKeyCmd() *cobra.Command {
	var useBcrypt bool
	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an API key for auth.key_hashes",
		Long: `Hash-key prints the digest to put in auth.key_hashes (or
LOGLENS_AUTH_KEY_HASHES). The key is read from stdin when not given as an
argument, which keeps it out of shell history.

Examples:
  echo -n "$KEY" | loglens hash-key
  loglens hash-key --bcrypt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("key must not be empty")
			}

			hash := auth.HashKey(key)
			if useBcrypt {
				var err error
				if hash, err = auth.BcryptKey(key); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("subject: apikey:"+auth.Fingerprint(key)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "emit a bcrypt hash instead of sha256")
	return cmd
}
