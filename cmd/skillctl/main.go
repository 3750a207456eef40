// Command skillctl runs operational tasks against the SkillExchange database:
// schema migrations and rating aggregate repair.
package main

import (
	"fmt"
	"os"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// dbFlags holds the connection settings shared by every subcommand
type dbFlags struct {
	URL string
}

func newDBFlags(cfg *config.Config) *dbFlags {
	return &dbFlags{URL: cfg.Database.URL}
}

func (f *dbFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.URL, "database-url", f.URL, "Postgres connection URL (defaults to DATABASE_URL)")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(&cfg.Logging, cfg.Server.Env, "skillctl")

	db := newDBFlags(cfg)
	rootCmd := &cobra.Command{
		Use:           "skillctl",
		Short:         "Operational commands for the SkillExchange backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	db.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newMigrateCmd(db), newRatingsCmd(cfg, db))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
