package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxprune/internal/logging"
	"github.com/teemow/inboxprune/internal/mailbox"
	"github.com/teemow/inboxprune/internal/server"
)

func newCountCmd() *cobra.Command {
	var (
		f                stackFlags
		account          string
		includeSpamTrash bool
	)

	cmd := &cobra.Command{
		Use:   "count <filter>",
		Short: "Estimate how many messages match a Gmail filter",
		Long: `Print the server's estimate of how many messages match a Gmail search
filter. The count is audited like the gmail_count tool.`,
		Example: `  inboxprune count "from:news@example.com older_than:1y"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.Discard()

			stores, err := server.OpenStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close() }()

			stack := &server.Stack{
				Config:   cfg,
				ReadOnly: true,
				Tickets:  stores.Tickets,
				Audit:    stores.Audit,
				Logger:   logger,
			}

			svc, err := stack.Factory()(cmd.Context(), account)
			if err != nil {
				return err
			}
			return runCount(cmd, svc, args[0], includeSpamTrash)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&account, "account", server.DefaultAccount, "Account name")
	cmd.Flags().BoolVar(&includeSpamTrash, "include-spam-trash", false, "Include messages in spam and trash")

	return cmd
}

func runCount(cmd *cobra.Command, svc *mailbox.Service, filter string, includeSpamTrash bool) error {
	est, err := svc.Count(cmd.Context(), filter, includeSpamTrash)
	if err != nil {
		return fmt.Errorf("failed to count: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), mailbox.RenderCount(filter, est))
	return nil
}
