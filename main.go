package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/DipshikaSpotops/spotopsCRMv2-sub001/cmd/api"
	authUsecase "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/usecase"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/repository"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/scheduler"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/mailsync/usecase"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/notification"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/config"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/database"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/fcm"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/gmail"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/logger"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/mongodb"
	"github.com/DipshikaSpotops/spotopsCRMv2-sub001/pkg/sse"

	"github.com/rs/zerolog"
)

func main() {
	issueToken := flag.String("issue-admin-token", "", "print an admin JWT for the given subject and exit")
	tokenTTL := flag.Duration("admin-token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-admin-token")
	flag.Parse()

	if err := run(*issueToken, *tokenTTL); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

// stores groups the persistence layer selected by STORE_DRIVER
type stores struct {
	cursors  repository.CursorRepository
	messages repository.MessageRepository
	close    func(context.Context) error
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		log.Info().Msg("running database migrations")
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		db, err := database.NewPostgresConnection(cfg.DatabaseURL, logger.Component(log, "gorm"))
		if err != nil {
			return nil, err
		}
		return &stores{
			cursors:  repository.NewCursorRepository(db),
			messages: repository.NewMessageRepository(db),
			close:    func(context.Context) error { return database.Close(db) },
		}, nil

	case config.StoreDriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			cursors:  repository.NewMongoCursorRepository(db),
			messages: repository.NewMongoMessageRepository(db),
			close:    client.Disconnect,
		}, nil

	default:
		log.Warn().Msg("using in-memory stores, cursors are lost on restart")
		return &stores{
			cursors:  repository.NewMemoryCursorRepository(),
			messages: repository.NewMemoryMessageRepository(),
			close:    func(context.Context) error { return nil },
		}, nil
	}
}

func run(issueToken string, tokenTTL time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	var authUc authUsecase.AuthUsecase
	if cfg.AdminJWTSecret != "" {
		authUc = authUsecase.NewAuthUsecase(cfg.AdminJWTSecret)
	}
	if issueToken != "" {
		if authUc == nil {
			return errors.New("ADMIN_JWT_SECRET is required to issue admin tokens")
		}
		token, err := authUc.IssueToken(issueToken, "", tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	gmailService := gmail.NewService(gmail.Config{
		CredentialsFile: cfg.GoogleCredentials,
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RefreshToken:    cfg.GmailRefreshToken,
		CallTimeout:     cfg.ProviderCallTimeout,
	}, logger.Component(log, "gmail"))
	if !gmailService.Configured() {
		log.Warn().Msg("no Gmail credentials configured, sync passes will fail with a configuration error")
	}

	// Ingest events: SSE hub always, FCM topic when credentials are present
	sseManager := sse.NewManager()
	go sseManager.Run(ctx)

	var sender notification.TopicSender
	if cfg.FirebaseCredentials != "" && cfg.FCMTopic != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials, logger.Component(log, "fcm"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize FCM client, push notifications disabled")
		} else {
			sender = fcmClient
		}
	}
	publisher := notification.NewPublisher(sseManager, sender, cfg.FCMTopic, logger.Component(log, "publisher"))
	defer publisher.Wait()

	// Sync engine; one locker shared by every component that touches a cursor
	locker := usecase.NewMailboxLocker()
	fetcher := usecase.NewCatchupFetcher(gmailService, st.messages, usecase.NewAttributionResolver(cfg.AgentAddresses), usecase.FetcherConfig{
		Concurrency: cfg.SyncFetchConcurrency,
		CallTimeout: cfg.ProviderCallTimeout,
	}, logger.Component(log, "fetcher"))
	syncer := usecase.NewHistorySynchronizer(gmailService, st.cursors, fetcher, locker, usecase.SynchronizerConfig{
		MaxPages:          cfg.SyncMaxPages,
		LabelScope:        cfg.WatchLabelIDs,
		LabelFilterAction: cfg.WatchLabelFilterAction,
		MaxHoldAttempts:   cfg.SyncMaxHoldAttempts,
	}, logger.Component(log, "sync"))
	gateway := usecase.NewNotificationGateway(usecase.GatewayConfig{
		SharedSecret: cfg.PushSharedSecret,
		Mailboxes:    cfg.Mailboxes,
	}, st.cursors, syncer, publisher, logger.Component(log, "gateway"))
	subscriptions := usecase.NewSubscriptionManager(gmailService, st.cursors, locker, usecase.SubscriptionConfig{
		Topic:             cfg.PubSubTopicPath(),
		LabelIDs:          cfg.WatchLabelIDs,
		LabelFilterAction: cfg.WatchLabelFilterAction,
	}, logger.Component(log, "subscriptions"))
	mailboxUc := usecase.NewMailboxUsecase(syncer, subscriptions, usecase.NewStatusReader(st.cursors), st.messages, publisher)

	if cfg.PushSharedSecret == "" {
		log.Warn().Msg("PUSH_SHARED_SECRET not set, push endpoint accepts unauthenticated requests")
	}

	// Pull mode only when a subscription is configured
	if cfg.GoogleProjectID != "" && cfg.GooglePubSubSubscription != "" {
		notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, cfg.PubSubTopicName(), cfg.GooglePubSubSubscription, cfg.GoogleCredentials, gateway, logger.Component(log, "pubsub"))
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize notification service")
		} else {
			defer notifService.Close()
			go func() {
				if err := notifService.Start(ctx); err != nil {
					log.Error().Err(err).Msg("notification service stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("GOOGLE_PUBSUB_SUBSCRIPTION not configured, pull mode disabled")
	}

	reconciler := scheduler.NewReconciler(mailboxUc, cfg.ReconcileInterval, cfg.ReconcileStaleAfter, logger.Component(log, "reconciler"))
	reconciler.Start(ctx)
	defer reconciler.Stop()

	handler := api.NewHandler(authUc, gateway, mailboxUc, sseManager, logger.Component(log, "http"))
	srv := handler.Server(":" + cfg.Port)

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}
	log.Info().Msg("application stopped")
	return nil
}
