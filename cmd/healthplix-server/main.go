package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthplix/healthplix/internal/config"
	"github.com/healthplix/healthplix/internal/domain/careassignment"
	"github.com/healthplix/healthplix/internal/domain/connection"
	"github.com/healthplix/healthplix/internal/domain/prescription"
	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/domain/schedule"
	"github.com/healthplix/healthplix/internal/platform/auth"
	"github.com/healthplix/healthplix/internal/platform/changefeed"
	"github.com/healthplix/healthplix/internal/platform/db"
	"github.com/healthplix/healthplix/internal/platform/middleware"
	"github.com/healthplix/healthplix/internal/platform/websocket"
	"github.com/healthplix/healthplix/pkg/careclient"
)

const (
	version        = "0.1.0"
	bodyLimit      = "1M"
	requestTimeout = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthplix-server",
		Short: "Doctor/patient connection API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(tokenCmd())

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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

// watchCmd tails the change stream of a running server.
func watchCmd() *cobra.Command {
	var (
		baseURL string
		email   string
		token   string
		tables  []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := careclient.New(careclient.Config{BaseURL: baseURL, DevEmail: email, Token: token})
			enc := json.NewEncoder(cmd.OutOrStdout())
			return client.Watch(ctx, tables, func(ev careclient.Event) {
				enc.Encode(ev)
			})
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8000/api/v1", "API base URL")
	cmd.Flags().StringVar(&email, "email", "", "Identity to send as X-Dev-Email (development servers)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("HEALTHPLIX_TOKEN"), "Bearer token")
	cmd.Flags().StringSliceVar(&tables, "tables", []string{
		changefeed.TableConnectionRequests, changefeed.TableCareAssignments,
	}, "Tables to watch")
	return cmd
}

// tokenCmd signs a token with AUTH_SIGNING_KEY for local testing.
func tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// notifier is the change fan-out: the local hub plus, depending on
// configuration, a Redis bus shared with other instances and an MQTT
// mirror for mobile clients.
type notifier struct {
	hub       *websocket.Hub
	publisher changefeed.Publisher
	bus       *changefeed.RedisBus
	closers   []func()
}

func newNotifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*notifier, error) {
	n := &notifier{hub: websocket.NewHub(logger.With().Str("component", "hub").Logger())}

	var mirror changefeed.Publisher
	if cfg.MQTTBroker != "" {
		client, err := changefeed.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, func() { client.Disconnect(250) })
		mirror = changefeed.NewMQTTMirror(client, cfg.MQTTTopicPrefix)
		logger.Info().Str("broker", cfg.MQTTBroker).Msg("mirroring changes to MQTT")
	}

	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		client, err := changefeed.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			n.close()
			return nil, err
		}
		n.closers = append(n.closers, func() { client.Close() })
		n.bus = changefeed.NewRedisBus(client, changefeed.DefaultChannelPrefix, logger.With().Str("component", "redis_bus").Logger())
		// the hub is fed by Relay so every instance sees every change once
		n.publisher = changefeed.Fanout{n.bus, mirror}
	default:
		n.publisher = changefeed.Fanout{n.hub, mirror}
	}
	return n, nil
}

// run relays the Redis bus into the hub until ctx ends.
func (n *notifier) run(ctx context.Context, logger zerolog.Logger) {
	if n.bus == nil {
		return
	}
	for {
		err := n.bus.Relay(ctx, n.hub, nil)
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("redis relay stopped; restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// logChanges writes a debug line for each change this instance's hub
// delivers, until ctx ends.
func logChanges(ctx context.Context, hub *websocket.Hub, logger zerolog.Logger) {
	sub := hub.Listen(0,
		changefeed.TableConnectionRequests,
		changefeed.TableCareAssignments,
		changefeed.TablePrescriptions,
		changefeed.TableScheduleEntries,
	)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C:
			if !ok {
				return
			}
			logger.Debug().Str("table", c.Table).Str("type", string(c.Type)).Time("at", c.Timestamp).Msg("change delivered")
		}
	}
}

func (n *notifier) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
}

type services struct {
	profiles      *profile.Service
	connections   *connection.Service
	assignments   *careassignment.Service
	prescriptions *prescription.Service
	schedule      *schedule.Service
}

func newServices(pool *pgxpool.Pool, publisher changefeed.Publisher) *services {
	profileRepo := profile.NewProfileRepoPG(pool)
	assignmentRepo := careassignment.NewAssignmentRepoPG(pool)

	profileSvc := profile.NewService(profileRepo)
	assignmentSvc := careassignment.NewService(assignmentRepo, profileSvc)

	connectionSvc := connection.NewService(connection.NewRequestRepoPG(pool), profileSvc, assignmentRepo, db.NewTxRunner(pool))
	connectionSvc.SetPublisher(publisher)

	prescriptionSvc := prescription.NewService(prescription.NewPrescriptionRepoPG(pool), assignmentSvc)
	prescriptionSvc.SetPublisher(publisher)

	scheduleSvc := schedule.NewService(schedule.NewEntryRepoPG(pool), assignmentSvc)
	scheduleSvc.SetPublisher(publisher)

	return &services{
		profiles:      profileSvc,
		connections:   connectionSvc,
		assignments:   assignmentSvc,
		prescriptions: prescriptionSvc,
		schedule:      scheduleSvc,
	}
}

func newEcho(cfg *config.Config, logger zerolog.Logger, svc *services, hub *websocket.Hub, pinger db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevEmailHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}
	e.Use(auth.ResolveProfile(svc.profiles, auth.RegistrationSkipper))

	// Audit middleware
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	profile.NewHandler(svc.profiles).RegisterRoutes(apiV1)
	connection.NewHandler(svc.connections).RegisterRoutes(apiV1)
	careassignment.NewHandler(svc.assignments).RegisterRoutes(apiV1)
	prescription.NewHandler(svc.prescriptions).RegisterRoutes(apiV1)
	schedule.NewHandler(svc.schedule).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Change notifications
	n, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start change notifications")
	}
	defer n.close()
	go n.run(ctx, logger)
	if logger.GetLevel() <= zerolog.DebugLevel {
		go logChanges(ctx, n.hub, logger.With().Str("component", "changes").Logger())
	}
	logger.Info().Str("backend", cfg.NotifyBackend).Msg("change notifications ready")

	e := newEcho(cfg, logger, newServices(pool, n.publisher), n.hub, pool)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
