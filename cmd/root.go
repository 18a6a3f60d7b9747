package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxprune/internal/config"
)

// rootCmd represents the base command for the inboxprune application
var rootCmd = &cobra.Command{
	Use:   "inboxprune",
	Short: "Guarded bulk deletion of Gmail messages for AI assistants",
	Long: `inboxprune is an MCP (Model Context Protocol) server that lets AI assistants
search Gmail and delete messages in bulk behind hard limits, dry runs and
single-use confirmation tokens. Every search, count, delete and unsubscribe
scan is written to a tamper-evident audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(".env")
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxprune version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newCountCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
