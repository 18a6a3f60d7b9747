package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxprune/internal/config"
)

// stackFlags are the settings shared by every command that talks to Gmail.
type stackFlags struct {
	configFile  string
	ticketStore string
	redisAddr   string
	auditStore  string
	auditPath   string
	postgresDSN string
}

func (f *stackFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "Policy file (YAML). Can also use INBOXPRUNE_CONFIG env var.")
	cmd.Flags().StringVar(&f.ticketStore, "ticket-store", config.StoreMemory, "Confirmation ticket store: memory or redis")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "Redis address for --ticket-store=redis (default: localhost:6379)")
	cmd.Flags().StringVar(&f.auditStore, "audit-store", config.StoreFile, "Audit log store: file or postgres")
	cmd.Flags().StringVar(&f.auditPath, "audit-path", "", "Audit log file for --audit-store=file (default: user config dir)")
	cmd.Flags().StringVar(&f.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string for --audit-store=postgres")
}

// loadConfig resolves the policy: flags override the environment, which
// overrides the policy file, which overrides the defaults.
func (f *stackFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	envString(cmd, "config", "INBOXPRUNE_CONFIG", &f.configFile)

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("ticket-store") {
		cfg.Tickets.Store = f.ticketStore
	}
	if flags.Changed("redis-addr") {
		cfg.Tickets.Redis.Addr = f.redisAddr
	}
	if flags.Changed("audit-store") {
		cfg.Audit.Store = f.auditStore
	}
	if flags.Changed("audit-path") {
		cfg.Audit.Path = f.auditPath
	}
	if flags.Changed("postgres-dsn") {
		cfg.Audit.PostgresDSN = f.postgresDSN
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// envString applies an environment fallback to a flag the user did not set.
func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// envBool is envString for boolean flags. Unparsable values are ignored.
func envBool(cmd *cobra.Command, flag, env string, dst *bool) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
