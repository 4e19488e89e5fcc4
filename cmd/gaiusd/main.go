// Command gaiusd runs the Gaius loyalty service: a REST API over Algorand
// loyalty programs, passes, and XP ledgers.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/Emrys-Org/gaius-loyalty/infra/supabase"
	app "github.com/Emrys-Org/gaius-loyalty/internal/app"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/httpapi"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/metrics"
	memberssvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/members"
	xpsvc "github.com/Emrys-Org/gaius-loyalty/internal/app/services/xp"
	"github.com/Emrys-Org/gaius-loyalty/internal/app/storage/postgres"
	"github.com/Emrys-Org/gaius-loyalty/internal/chain"
	"github.com/Emrys-Org/gaius-loyalty/internal/config"
	"github.com/Emrys-Org/gaius-loyalty/internal/ipfs"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gaiusd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.Sync()

	stores, db, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	sb := buildSupabase(cfg, log)

	opts, err := buildOptions(cfg, sb, log)
	if err != nil {
		return err
	}

	application, err := app.New(stores, opts, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	handler := buildHandler(cfg, application, sb, log)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// openStores connects Postgres when configured, running migrations first.
// Without a DSN the service keeps everything in memory.
func openStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(db, cfg.Database.MigrationsDir); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.New(db)
	log.Info("postgres storage ready")
	return app.Stores{
		Programs: store,
		Members:  store,
		Passes:   store,
		Ledgers:  store,
	}, db, nil
}

func runMigrations(db *sql.DB, dir string) error {
	if dir == "" {
		dir = "migrations"
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// buildSupabase constructs the Supabase client shared by auth verification,
// profile lookups, and artwork storage. Returns nil when unconfigured.
func buildSupabase(cfg *config.Config, log *logger.Logger) *supabase.Client {
	if cfg.Supabase.ProjectURL == "" || cfg.Supabase.AnonKey == "" {
		log.Warn("supabase not configured; profile enrichment and artwork uploads disabled")
		return nil
	}
	client, err := supabase.New(supabase.Config{
		ProjectURL: cfg.Supabase.ProjectURL,
		AnonKey:    cfg.Supabase.AnonKey,
		ServiceKey: cfg.Supabase.ServiceKey,
	})
	if err != nil {
		log.WithError(err).Warn("supabase client unavailable")
		return nil
	}
	return client
}

// profileDirectory adapts the Supabase PostgREST client to the members
// service's profile lookup interface.
type profileDirectory struct {
	db *supabase.DatabaseClient
}

func (p profileDirectory) GetProfile(ctx context.Context, userID string) (memberssvc.Profile, error) {
	profile, err := p.db.GetProfile(ctx, userID)
	if err != nil {
		return memberssvc.Profile{}, err
	}
	return memberssvc.Profile{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Wallet:      profile.Wallet,
		AvatarURL:   profile.AvatarURL,
	}, nil
}

// artworkBucket adapts Supabase storage to the programs service's artwork
// store interface.
type artworkBucket struct {
	storage *supabase.StorageClient
	bucket  string
}

func (a artworkBucket) UploadArtwork(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	path := "programs/" + name
	opts := &supabase.UploadOptions{ContentType: contentType, Upsert: true}
	if _, err := a.storage.Upload(ctx, a.bucket, path, data, opts); err != nil {
		return "", err
	}
	return a.storage.PublicURL(a.bucket, path), nil
}

func buildOptions(cfg *config.Config, sb *supabase.Client, log *logger.Logger) (app.Options, error) {
	opts := app.Options{
		SyncInterval:  cfg.Sync.Interval,
		ReconcileSpec: cfg.Sync.ReconcileSpec,
	}

	if sb != nil {
		opts.Profiles = profileDirectory{db: sb.Database()}
		if cfg.Supabase.ServiceKey != "" {
			opts.Artwork = artworkBucket{storage: sb.Storage(), bucket: cfg.Supabase.ArtworkBucket}
		} else {
			log.Warn("SUPABASE_SERVICE_KEY not set; artwork uploads disabled")
		}
	}

	indexer, err := chain.NewIndexer(chain.IndexerConfig{
		URL:   cfg.Chain.IndexerURL,
		Token: cfg.Chain.IndexerToken,
	})
	if err != nil {
		return app.Options{}, fmt.Errorf("indexer client: %w", err)
	}
	opts.Indexer = indexer

	if cfg.Chain.OperatorMnemonic != "" {
		writer, err := chain.NewWriter(chain.WriterConfig{
			AlgodURL:         cfg.Chain.AlgodURL,
			AlgodToken:       cfg.Chain.AlgodToken,
			OperatorMnemonic: cfg.Chain.OperatorMnemonic,
			WaitRounds:       cfg.Chain.WaitRounds,
		}, log)
		if err != nil {
			return app.Options{}, fmt.Errorf("chain writer: %w", err)
		}
		log.WithField("operator", writer.OperatorAddress()).Info("chain writer ready")
		opts.Writer = writer
		opts.AwardSender = writer.OperatorAddress()
	} else {
		log.Warn("GAIUS_OPERATOR_MNEMONIC not set; chain writes disabled")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; ledger cache disabled")
		} else {
			opts.Cache = xpsvc.NewRedisCache(client, cfg.Redis.TTL, log)
			log.Info("redis ledger cache ready")
		}
	}

	return opts, nil
}

func buildHandler(cfg *config.Config, application *app.Application, sb *supabase.Client, log *logger.Logger) http.Handler {
	var verifier httpapi.TokenVerifier
	if sb != nil {
		verifier = sb.Auth()
	}

	if cfg.Supabase.JWTSecret == "" && verifier == nil {
		log.Warn("no SUPABASE_JWT_SECRET and no supabase client; API requests will be rejected")
	}

	gateway := ipfs.NewGateway(cfg.IPFS.GatewayURL, cfg.IPFS.Timeout)
	api := httpapi.NewHandler(application, gateway)
	limiter := httpapi.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	auth := httpapi.AuthMiddleware([]byte(cfg.Supabase.JWTSecret), verifier, log)

	root := mux.NewRouter()
	root.Handle("/healthz", api).Methods(http.MethodGet)
	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	root.PathPrefix("/v1").Handler(auth(limiter.Middleware(api)))

	return httpapi.CORSMiddleware(cfg.Server.AllowedOrigins)(root)
}
