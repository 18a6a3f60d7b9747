package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxprune/internal/google"
	"github.com/teemow/inboxprune/internal/server"
)

func newAuthCmd() *cobra.Command {
	var (
		account string
		code    string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access for an account",
		Long: `Authorize Gmail access for an account and store the OAuth token.

The command prints an authorization URL. Open it, grant access and paste the
code back, or pass it with --code. GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET
must name an OAuth client of type "Desktop app".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := google.ValidateAccountName(account); err != nil {
				return err
			}
			if google.HasTokenForAccount(account) && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Account %q is already authorized (token: %s). Use --force to re-authorize.\n",
					account, google.TokenFilePath(account))
				return nil
			}

			if code == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Visit this URL in your browser to authorize account %q:\n\n  %s\n\nAuthorization code: ",
					account, google.AuthURL(account))
				var err error
				code, err = readAuthCode(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			if err := google.SaveToken(cmd.Context(), account, code); err != nil {
				return fmt.Errorf("failed to save token for account %s: %w", account, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authorization successful for account %q. Token saved to %s\n",
				account, google.TokenFilePath(account))
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", server.DefaultAccount, "Account name")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (prompted when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-authorize even if a token exists")

	return cmd
}

func readAuthCode(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		return "", fmt.Errorf("no authorization code given")
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", fmt.Errorf("no authorization code given")
	}
	return code, nil
}
