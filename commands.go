package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"jeoparty/config"
	"jeoparty/handlers"
	"jeoparty/metrics"
	"jeoparty/middleware"
	"jeoparty/pkg/logger"
	"jeoparty/routes"
	"jeoparty/security"
	"jeoparty/services"
	"jeoparty/store"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           "jeoparty",
		Short:         "Real-time coordinator for Jeopardy-style quiz games.",
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	fs := cmd.PersistentFlags()
	fs.String("app-env", "production", "environment name, development enables verbose logging (env: JEOPARTY_APP_ENV)")
	fs.String("log-level", "info", "debug, info, warn or error (env: JEOPARTY_LOG_LEVEL)")
	fs.String("store", config.StorePostgres, "postgres or memory (env: JEOPARTY_STORE)")
	bindFlags(v, fs)

	cmd.AddCommand(newServeCmd(v), newMigrateCmd(v), newImportPackCmd(v), newTokenCmd(v))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("jeoparty v{{.Version}}\n")
	return cmd
}

// bindFlags maps --some-flag onto the viper key some_flag so flags, JEOPARTY_*
// variables and defaults resolve through one lookup.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// loadConfig reads and validates the configuration and initializes logging.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Load(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.IsDevelopment())
	return cfg, nil
}

// openStore connects the configured store. Postgres schemas are migrated when migrate is set.
func openStore(cfg *config.Config, migrate bool) (store.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using in-memory store, games are lost on restart")
		return store.NewMemoryStore(), nil
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store.NewGormStore(db), nil
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringP("port", "p", "8080", "port to listen on (env: JEOPARTY_PORT)")
	fs.StringP("bind-address", "b", "0.0.0.0", "address to bind to (env: JEOPARTY_BIND_ADDRESS)")
	fs.String("base-url", "http://localhost:8080", "public URL used in join links (env: JEOPARTY_BASE_URL)")
	fs.Bool("metrics-enabled", false, "expose /metrics and record OpenTelemetry metrics (env: JEOPARTY_METRICS_ENABLED)")
	bindFlags(v, fs)
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(cfg, true)
	if err != nil {
		return err
	}

	recorder, metricsHandler, shutdownMetrics, err := metrics.Setup(ctx, metrics.TelemetryConfig{
		Enabled:      cfg.MetricsEnabled,
		ServiceName:  "jeoparty",
		OtlpEndpoint: cfg.OtlpEndpoint,
		OtlpInsecure: cfg.OtlpInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	redisClient := config.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}
	states := services.NewStateCache(redisClient, cfg.StateTTL)

	hub := services.NewHub()
	registry := services.NewRegistry(st, hub, recorder, services.WithStateCache(states))
	hub.SetDispatcher(registry)
	go hub.Run(ctx)

	gameService := services.NewGameService(st, registry, states, cfg.BaseURL)
	packService := services.NewPackService(st)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logging(recorder), middleware.CORS())
	routes.SetupRoutes(router, routes.Dependencies{
		GameHandler:    handlers.NewGameHandler(gameService, registry),
		PackHandler:    handlers.NewPackHandler(packService),
		GameService:    gameService,
		Hub:            hub,
		JWTSecret:      cfg.SigningSecret(),
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", srv.Addr, "store", cfg.Store, "redis", redisClient != nil, "metrics", cfg.MetricsEnabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Warn("Metrics shutdown failed", "error", err)
	}
	return nil
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate requires the %s store", config.StorePostgres)
			}
			if _, err := openStore(cfg, true); err != nil {
				return err
			}
			logger.Info("Database migrated")
			return nil
		},
	}
}

func newImportPackCmd(v *viper.Viper) *cobra.Command {
	req := &services.ImportPackRequest{}
	var file string

	cmd := &cobra.Command{
		Use:   "import-pack",
		Short: "Import a question pack from an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("import-pack requires the %s store", config.StorePostgres)
			}

			st, err := openStore(cfg, true)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			pack, err := services.NewPackService(st).ImportPack(cmd.Context(), f, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pack.ID)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&file, "file", "f", "", "path to the workbook")
	fs.StringVar(&req.Name, "name", "", "pack name")
	fs.StringVar(&req.CreatedBy, "created-by", "", "id of the presenter who owns the pack")
	fs.BoolVar(&req.Finale, "finale", false, "treat the last sheet as the finale round")
	fs.BoolVar(&req.Public, "public", false, "make the pack available to every presenter")
	fs.StringVar(&req.Language, "language", "english", "pack language")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("created-by")
	return cmd
}

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a presenter token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			token, err := security.GenerateJWT(userID, cfg.SigningSecret(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&userID, "user", "", "presenter id")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
