package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxprune/internal/audit"
	"github.com/teemow/inboxprune/internal/config"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(newAuditVerifyCmd())
	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	var (
		auditPath  string
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate every audit record and check the hash chain",
		Long: `Validate every line of the JSONL audit log against the record schema and
check that sequence numbers and digests form an unbroken chain. A record that
was edited, removed or reordered breaks the chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envString(cmd, "config", "INBOXPRUNE_CONFIG", &configFile)
			if !cmd.Flags().Changed("audit-path") {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				auditPath = cfg.Audit.Path
			}

			n, err := audit.VerifyFile(auditPath)
			if err != nil {
				return fmt.Errorf("audit log %s: %w", auditPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Verified %d audit record(s) in %s\n", n, auditPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&auditPath, "audit-path", "", "Audit log file (default: from config)")
	cmd.Flags().StringVar(&configFile, "config", "", "Policy file (YAML). Can also use INBOXPRUNE_CONFIG env var.")

	return cmd
}
