package main

import (
	"context"
	"log/slog"

	"github.com/AdamBeresnev/dojo-brackets/internal/config"
	"github.com/AdamBeresnev/dojo-brackets/internal/export"
	"github.com/AdamBeresnev/dojo-brackets/internal/live"
	"github.com/AdamBeresnev/dojo-brackets/internal/metrics"
	"github.com/AdamBeresnev/dojo-brackets/internal/service"
	"github.com/AdamBeresnev/dojo-brackets/internal/store"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
)

type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Manager
	hub      *live.Hub
	upgrader websocket.Upgrader

	tournaments   *service.TournamentService
	registrations *service.RegistrationService
	generation    *service.GenerationService
	matches       *service.MatchService
	standings     *service.StandingsService
}

func newApplication(ctx context.Context, cfg *config.Config, database *sqlx.DB, logger *slog.Logger, opts ...metrics.Option) (*application, error) {
	m := metrics.NewManager(opts...)
	hub := live.NewHub(logger, cfg.CORSAllowedOrigins, m)

	tournamentStore := store.NewTournamentStore(database)
	registrationStore := store.NewRegistrationStore(database)
	bracketStore := store.NewBracketStore(database)
	locks := service.NewKeyedMutex()

	var publisher service.StandingsPublisher
	if cfg.ExportEnabled() {
		p, err := export.NewS3Publisher(ctx, export.S3Config{
			Bucket:          cfg.ExportBucket,
			Endpoint:        cfg.ExportEndpoint,
			Region:          cfg.ExportRegion,
			AccessKeyID:     cfg.ExportAccessKeyID,
			SecretAccessKey: cfg.ExportSecretAccessKey,
			Prefix:          cfg.ExportPrefix,
			PublicURL:       cfg.ExportPublicURL,
		})
		if err != nil {
			return nil, err
		}
		publisher = p
		logger.Info("standings export enabled", "bucket", cfg.ExportBucket)
	}

	return &application{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		hub:           hub,
		upgrader:      live.NewUpgrader(cfg.CORSAllowedOrigins),
		tournaments:   service.NewTournamentService(database, tournamentStore),
		registrations: service.NewRegistrationService(database, tournamentStore, registrationStore, bracketStore, locks, logger),
		generation: service.NewGenerationService(database, tournamentStore, registrationStore, bracketStore, locks, hub, m, logger,
			service.WithRandomSeeding(cfg.RandomSeeding)),
		matches:   service.NewMatchService(database, bracketStore, locks, hub, m, logger),
		standings: service.NewStandingsService(tournamentStore, bracketStore, publisher, m, logger),
	}, nil
}
