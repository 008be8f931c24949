package main

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebase/carebase/internal/config"
	"github.com/carebase/carebase/internal/domain/identity"
	"github.com/carebase/carebase/internal/domain/platformadmin"
	"github.com/carebase/carebase/internal/domain/tenant"
	"github.com/carebase/carebase/internal/platform/auth"
	"github.com/carebase/carebase/internal/platform/crypto"
	"github.com/carebase/carebase/internal/platform/db"
	"github.com/carebase/carebase/internal/platform/middleware"
	"github.com/carebase/carebase/internal/platform/response"
	"github.com/carebase/carebase/internal/platform/token"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebase-server",
		Short: "Multi-tenant healthcare API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if dir == "" {
				dir = cfg.MigrationsDir
			}
			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "master", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if dir == "" {
				dir = cfg.MigrationsDir
			}
			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "master", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register and approve a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			subdomain, _ := cmd.Flags().GetString("subdomain")
			if name == "" || subdomain == "" {
				return fmt.Errorf("--name and --subdomain are required")
			}

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := token.NewService(token.Config{
				SigningKey: []byte(cfg.TokenSigningKey),
				Issuer:     cfg.TokenIssuer,
			}, token.NewPGRefreshTokenStore(pool), token.NewPGCSRFSessionStore())
			if err != nil {
				return err
			}

			svc := tenant.NewService(
				tenant.NewPGRepository(pool),
				tenant.NewPGProvisioner(pool, cfg.TenantMigrationsDir),
				tokens,
				func(ctx context.Context, tenantID string) (context.Context, func(), error) {
					return db.BindTenant(ctx, pool, tenantID)
				},
				logger,
			)

			t, err := svc.Register(ctx, tenant.RegisterRequest{Name: name, Subdomain: subdomain})
			if err != nil {
				return err
			}
			if _, err := svc.Approve(ctx, t.ID); err != nil {
				return err
			}
			fmt.Printf("Tenant %s created and approved (schema tenant_%s).\n", t.ID, t.ID)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant display name")
	createCmd.Flags().String("subdomain", "", "Tenant subdomain (schema-safe identifier)")
	cmd.AddCommand(createCmd)

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage platform admins",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a platform admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens, err := token.NewService(token.Config{
				SigningKey: []byte(cfg.TokenSigningKey),
				Issuer:     cfg.TokenIssuer,
			}, token.NewPGRefreshTokenStore(pool), token.NewPGCSRFSessionStore())
			if err != nil {
				return err
			}

			svc := platformadmin.NewService(
				platformadmin.NewPGRepository(pool),
				tokens,
				crypto.NewPasswordHasher(crypto.DefaultArgon2Params()),
				logger,
			)
			a, err := svc.CreateAdmin(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Printf("Platform admin %s created (%s).\n", a.Username, a.ID)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Admin username")
	createCmd.Flags().String("password", "", "Admin password (min 12 characters)")
	cmd.AddCommand(createCmd)

	return cmd
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Crypto primitives. Development falls back to ephemeral keys; data
	// encrypted under them does not survive a restart.
	encKey, err := resolveKey(cfg.EncryptionKey, cfg.FieldEncryptionKey, cfg, logger, "field encryption")
	if err != nil {
		logger.Fatal().Err(err).Msg("field encryption key")
	}
	indexKey, err := resolveKey(cfg.IndexKey, cfg.BlindIndexKey, cfg, logger, "blind index")
	if err != nil {
		logger.Fatal().Err(err).Msg("blind index key")
	}

	cipher, err := crypto.NewCipher(encKey, crypto.WithLegacyPlaintext(cfg.AllowLegacyPlaintext))
	if err != nil {
		logger.Fatal().Err(err).Msg("field cipher")
	}
	indexer, err := crypto.NewBlindIndexer(indexKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("blind indexer")
	}
	hasher := crypto.NewPasswordHasher(crypto.DefaultArgon2Params())

	tokens, err := token.NewService(token.Config{
		SigningKey: []byte(cfg.TokenSigningKey),
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}, token.NewPGRefreshTokenStore(pool), token.NewPGCSRFSessionStore())
	if err != nil {
		logger.Fatal().Err(err).Msg("token service")
	}

	// Domain services
	tenantSvc := tenant.NewService(
		tenant.NewPGRepository(pool),
		tenant.NewPGProvisioner(pool, cfg.TenantMigrationsDir),
		tokens,
		func(ctx context.Context, tenantID string) (context.Context, func(), error) {
			return db.BindTenant(ctx, pool, tenantID)
		},
		logger,
	)
	identitySvc := identity.NewService(
		identity.NewPGRepository(cipher, indexer), tokens, hasher, tenantSvc, logger)
	adminSvc := platformadmin.NewService(
		platformadmin.NewPGRepository(pool), tokens, hasher, logger)

	// Rate-limit counter backend: Redis when configured, process-local
	// otherwise.
	var counters middleware.CounterStore = middleware.NewMemoryCounterStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		counters = middleware.NewRedisCounterStore(redis.NewClient(opts))
		logger.Info().Msg("rate limiting backed by redis")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(logger, cfg.IsProduction())

	// Outer pipeline, in order. Every request passes these before any
	// handler or authenticated stage runs.
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-CSRF-Token"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Limit:  cfg.RateLimitRequests,
		Window: cfg.RateLimitWindow,
	}, counters))
	e.Use(middleware.ValidateContent())
	e.Use(middleware.Sanitize(logger))

	apiV1 := e.Group("/api/v1")

	// Tenant-user pipeline: authenticate, bind the tenant store, verify CSRF.
	authed := apiV1.Group("",
		auth.Authenticate(tokens),
		auth.ResolveTenant(tenantSvc),
		auth.VerifyCSRF(tokens),
	)

	// Platform-admin pipeline: parallel stages, no shared code path.
	platform := apiV1.Group("",
		auth.AuthenticateAdmin(tokens),
		auth.VerifyAdminCSRF(tokens),
	)

	policy := auth.DefaultPolicy()
	identity.NewHandler(identitySvc, cfg.TLSEnabled).RegisterRoutes(apiV1, authed, policy)
	tenant.NewHandler(tenantSvc).RegisterRoutes(apiV1, platform)
	platformadmin.NewHandler(adminSvc, cfg.TLSEnabled).RegisterRoutes(apiV1, platform)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		if err := db.Health(c.Request().Context(), pool); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// resolveKey returns the configured key, or a random ephemeral one in
// development when the key is unset. Validate has already rejected missing
// keys in production.
func resolveKey(decode func() ([]byte, error), raw string, cfg *config.Config, logger zerolog.Logger, name string) ([]byte, error) {
	if raw != "" {
		return decode()
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("%s key is not configured", name)
	}
	key := make([]byte, 32)
	if _, err := cryptorand.Read(key); err != nil {
		return nil, err
	}
	logger.Warn().Str("key", name).Msg("using ephemeral development key; encrypted data will not survive restart")
	return key, nil
}
