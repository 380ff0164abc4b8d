package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/actra/internal/config"
	"github.com/watzon/actra/internal/engine"
	"github.com/watzon/actra/internal/federation"
	"github.com/watzon/actra/internal/metrics"
	"github.com/watzon/actra/internal/notify"
	"github.com/watzon/actra/internal/permissions"
	"github.com/watzon/actra/internal/store"
	"github.com/watzon/actra/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the action engine",
	Long: `Load action-type definitions, open the action store, and run the
hook engine with federation delivery, notification fan-out, expiry
sweeping, and live definition reloads.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Options{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
		WALMode:     cfg.Database.WALMode,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	bus := notify.NewBus(cfg.Notifications.HistorySize, log.With().Str("component", "notify").Logger())

	fed, queue, err := buildFederation(ctx, cfg, st)
	if err != nil {
		return err
	}

	perms, err := permissions.NewEngine()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Collaborators{
		Profiles:   st.Profiles(),
		Actions:    st.Actions(),
		Federation: fed,
		Notifier:   bus,
	},
		engine.WithTimeout(cfg.Engine.HookTimeout),
		engine.WithPermissions(perms),
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
	)

	report, err := eng.LoadDefinitionsFromDir(cfg.Engine.DefinitionsDir)
	if err != nil {
		return err
	}
	for name, loadErr := range report.Failed {
		log.Warn().Err(loadErr).Str("file", name).Msg("definition rejected")
	}
	log.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Str("dir", cfg.Engine.DefinitionsDir).
		Msg("definitions loaded")

	if cfg.Engine.WatchDir {
		w, err := watcher.New(cfg.Engine.DefinitionsDir, eng, log.With().Str("component", "watcher").Logger())
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	sweeper := store.NewSweeper(st.Actions(), cfg.Database.SweepSchedule, log.With().Str("component", "sweeper").Logger())
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	queue.Start()
	defer queue.Stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Listen).Msg("metrics listening")
	}

	log.Info().Str("tenant", cfg.Engine.TenantTag).Msg("actra running")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func buildFederation(ctx context.Context, cfg *config.Config, st *store.Store) (*federation.Service, *federation.Queue, error) {
	var backend federation.Backend
	switch cfg.Federation.Attachments.Backend {
	case "s3":
		s3, err := federation.NewS3Backend(ctx, federation.S3Config{
			Region:          cfg.Federation.Attachments.S3Region,
			Bucket:          cfg.Federation.Attachments.S3Bucket,
			Endpoint:        cfg.Federation.Attachments.S3Endpoint,
			AccessKeyID:     cfg.Federation.Attachments.S3AccessKeyID,
			SecretAccessKey: cfg.Federation.Attachments.S3SecretAccessKey,
			ForcePathStyle:  cfg.Federation.Attachments.S3ForcePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = s3
	default:
		backend = federation.NewFilesystemBackend(cfg.Federation.Attachments.Path)
	}
	if cfg.Federation.Attachments.Compress {
		backend = federation.NewZstdBackend(backend)
	}

	tokens := federation.NewTokenService(cfg.Federation.Secret, cfg.Engine.TenantTag, cfg.Federation.TokenTTL)
	sender := federation.NewSigningSender(
		federation.NewHTTPSender(cfg.Federation.SendTimeout), tokens, st.Actions())

	queue := federation.NewQueue(sender, federation.RetryConfig{
		MaxAttempts:  cfg.Federation.MaxAttempts,
		BaseDelay:    cfg.Federation.BaseDelay,
		PollInterval: cfg.Federation.PollInterval,
	}, log.With().Str("component", "federation").Logger())

	svc := federation.NewService(queue,
		st.Actions().Followers(cfg.Engine.TenantTag),
		backend,
		federation.NewHTTPFetcher(cfg.Federation.SendTimeout),
		log.With().Str("component", "federation").Logger())
	return svc, queue, nil
}
