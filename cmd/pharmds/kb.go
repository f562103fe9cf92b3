package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmds-ddi-server/internal/config"
	"github.com/pharmds-ddi-server/internal/curation"
	"github.com/pharmds-ddi-server/internal/database"
	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/kb"
	"github.com/pharmds-ddi-server/internal/repository"
)

var kbFlags struct {
	driver   string
	path     string
	curation string
	output   string
}

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the curation dataset into a database",
	Long: `Validate the curation dataset and write it into a SQLite file or the
configured PostgreSQL database, replacing what is there.

Examples:
  # Seed ~/.pharmds/kb.db from the embedded dataset
  pharmds kb seed

  # Seed PostgreSQL from a curated file
  pharmds kb seed --driver postgres --curation ./curation.yaml`,
	RunE: runKBSeed,
}

var kbMigrateCmd = &cobra.Command{
	Use:       "migrate <up|down>",
	Short:     "Apply or roll back schema migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runKBMigrate,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print knowledge base counts",
	RunE:  runKBStats,
}

var kbExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the configured knowledge base as a curation YAML file",
	RunE:  runKBExport,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbSeedCmd, kbMigrateCmd, kbStatsCmd, kbExportCmd)

	kbCmd.PersistentFlags().StringVar(&kbFlags.driver, "driver", domain.KBSourceSQLite, "database driver: sqlite, postgres")
	kbCmd.PersistentFlags().StringVar(&kbFlags.path, "path", "", "SQLite file (default: kb.sqlite_path, else ~/.pharmds/kb.db)")
	kbSeedCmd.Flags().StringVar(&kbFlags.curation, "curation", "", "curation YAML file (default: embedded dataset)")
	kbExportCmd.Flags().StringVarP(&kbFlags.output, "output", "o", "-", "output file ('-' for stdout)")
}

// openKBDatabase opens the database selected by --driver.
func openKBDatabase(cfg *domain.Config) (*sql.DB, repository.Dialect, error) {
	switch kbFlags.driver {
	case domain.KBSourceSQLite:
		paths := config.DefaultPaths()
		path := kbFlags.path
		if path == "" {
			path = cfg.KB.SQLitePath
		}
		if path == "" {
			if err := paths.EnsureDataDir(); err != nil {
				return nil, "", err
			}
			path = paths.KnowledgeBasePath()
		}
		db, err := database.OpenSQLite(path)
		return db, repository.DialectSQLite, err
	case domain.KBSourcePostgres:
		db, err := database.OpenPostgresSQL(database.ConfigFrom(cfg.Database))
		return db, repository.DialectPostgres, err
	default:
		return nil, "", fmt.Errorf("unsupported driver %q: use sqlite or postgres", kbFlags.driver)
	}
}

func migrateUp(cmd *cobra.Command, db *sql.DB, dialect repository.Dialect, logger *logrus.Logger) error {
	ctx := commandContext(cmd)
	if dialect == repository.DialectPostgres {
		return database.ApplyPostgresMigrations(ctx, db, logger)
	}
	return database.ApplySQLiteMigrations(ctx, db, logger)
}

func runKBSeed(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ds, err := curation.LoadDataset(kbFlags.curation)
	if err != nil {
		return err
	}
	// Reject a dataset the engine would refuse to load.
	base, err := kb.New(ds)
	if err != nil {
		return err
	}

	db, dialect, err := openKBDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateUp(cmd, db, dialect, logger); err != nil {
		return err
	}
	if err := repository.NewSeeder(db, dialect, logger).Seed(commandContext(cmd), ds); err != nil {
		return err
	}

	stats := base.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s knowledge base: %d drugs, %d enzymes, %d transporters, %d effects\n",
		dialect, stats.Drugs, stats.Enzymes, stats.Transporters, stats.PDEffects)
	return nil
}

func runKBMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	db, dialect, err := openKBDatabase(cfg)
	if err != nil {
		return err
	}

	var runner *database.MigrationRunner
	if dialect == repository.DialectPostgres {
		runner, err = database.NewPostgresMigrationRunner(db, logger)
	} else {
		runner, err = database.NewSQLiteMigrationRunner(db, logger)
	}
	if err != nil {
		db.Close()
		return err
	}
	// Closing the runner closes db.
	defer runner.Close()

	ctx := commandContext(cmd)
	if args[0] == "up" {
		err = runner.Up(ctx)
	} else {
		err = runner.Down(ctx)
	}
	if err != nil {
		return err
	}

	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func runKBStats(cmd *cobra.Command, _ []string) error {
	services, err := newServices(commandContext(cmd))
	if err != nil {
		return err
	}
	defer services.Close()

	snap := services.Snapshots.Current()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Source      string                    `json:"source"`
		Fingerprint string                    `json:"fingerprint"`
		Rules       int                       `json:"rules"`
		Stats       domain.KnowledgeBaseStats `json:"stats"`
	}{
		Source:      snap.KBSource,
		Fingerprint: snap.Fingerprint,
		Rules:       snap.Rules.Len(),
		Stats:       snap.KB.Stats(),
	})
}

func runKBExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	repo, closeRepo, err := repository.Open(ctx, cfg.KB, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	ds, err := repo.Load(ctx)
	if err != nil {
		return err
	}
	file := curation.FromDataset(ds)

	if kbFlags.output == "-" {
		return file.Write(cmd.OutOrStdout())
	}
	f, err := os.Create(kbFlags.output)
	if err != nil {
		return err
	}
	if err := file.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
