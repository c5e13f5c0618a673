package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/careconnect/pairing-server/internal/config"
	"github.com/careconnect/pairing-server/internal/database"
	"github.com/careconnect/pairing-server/internal/handler"
	"github.com/careconnect/pairing-server/internal/jobs"
	"github.com/careconnect/pairing-server/internal/middleware"
	"github.com/careconnect/pairing-server/internal/redis"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/repository/memory"
	"github.com/careconnect/pairing-server/internal/service"
	"github.com/careconnect/pairing-server/internal/sse"
	"github.com/careconnect/pairing-server/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:           "pairing-server",
		Short:         "Doctor-patient connection and QR pairing API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(secretCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectForMigrations(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := database.NewMigrator(db).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connectForMigrations(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := database.NewMigrator(db).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				state, appliedAt := "pending", "-"
				if s.Applied {
					state = "applied"
				}
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

// secretCmd prints a random value strong enough for JWT_SECRET.
func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Generate a random JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := util.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}
			fmt.Println(secret)
			return nil
		},
	}
}

func connectForMigrations(ctx context.Context) (*database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setLogLevel(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	return database.Connect(ctx, cfg.DatabaseURL)
}

// stores bundles the repositories behind whichever driver is configured.
type stores struct {
	users       repository.UserRepository
	tokens      repository.PairingTokenRepository
	connections repository.ConnectionRepository
	workspaces  repository.WorkspaceRepository
	ping        func(ctx context.Context) error
	close       func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if !cfg.UsesPostgres() {
		log.Warn().Msg("using in-memory store: data is lost on restart")
		mem := memory.New(time.Now)
		return &stores{
			users:       mem.Users(),
			tokens:      mem.Tokens(),
			connections: mem.Connections(),
			workspaces:  mem.Workspaces(),
			close:       func() error { return nil },
		}, nil
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database connected")

	if cfg.MigrationsAuto {
		count, err := database.NewMigrator(db).Up(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info().Int("applied", count).Msg("migrations up to date")
	}

	return &stores{
		users:       repository.NewUserRepository(db.DB),
		tokens:      repository.NewPairingTokenRepository(db.DB),
		connections: repository.NewConnectionRepository(db.DB),
		workspaces:  repository.NewWorkspaceRepository(db.DB),
		ping:        db.Ping,
		close:       db.Close,
	}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		broker  *sse.Broker
		limiter middleware.Limiter
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		broker = sse.NewBroker(redisClient)
		limiter = service.NewRateLimiter(redisClient.Client)
	} else {
		log.Warn().Msg("REDIS_URL not set: rate limits and events are local to this instance")
		broker = sse.NewBroker(nil)
		limiter = middleware.NewMemoryLimiter()
	}
	defer broker.Close()

	tokenService := service.NewTokenService(st.tokens, st.users, cfg.QRBaseURL(), time.Now)
	connService := service.NewConnectionService(st.connections, broker)
	pairingService := service.NewPairingService(tokenService, connService, st.users)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:         service.NewAuthService(st.users, cfg.JWTSecret, cfg.SessionTTL(), time.Now),
		Tokens:       tokenService,
		Pairing:      pairingService,
		Connections:  connService,
		Workspaces:   service.NewWorkspaceService(st.connections, st.workspaces, st.users),
		Patients:     service.NewPatientService(st.users, st.connections),
		Broker:       broker,
		Limiter:      limiter,
		IsProduction: isProduction,
		Ping:         st.ping,
	})

	cleanupJob := jobs.NewCleanupJob(tokenService, cfg.TokenRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("store", cfg.StoreDriver).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("shutting down server")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Closing the broker first ends open event streams so Shutdown can drain.
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
