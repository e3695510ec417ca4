package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/ingest"
	"github.com/dnodevkis/tg-news-bot/internal/repository"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Import report drop files once and exit",
	Long: `Imports every *.json file in dir (the configured ingest dir by default)
into fetched_events. Imported files are removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		dir := cfg.Ingest.Dir
		if len(args) == 1 {
			dir = args[0]
		}

		db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repository.MigrateDB(db, logger); err != nil {
			return err
		}

		ing := ingest.New(repository.NewReportRepository(db, logger), ingest.Config{Dir: dir, Location: loc}, logger)
		n, err := ing.Sweep(cmd.Context(), dir)
		logger.Info("Ingest finished", zap.String("dir", dir), zap.Int("inserted", n))
		return err
	},
}
