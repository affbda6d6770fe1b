// Package server wires the settlement core together and serves its HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/lumenpass/lumenpass/internal/audit"
	"github.com/lumenpass/lumenpass/internal/config"
	"github.com/lumenpass/lumenpass/internal/escrow"
	"github.com/lumenpass/lumenpass/internal/event"
	"github.com/lumenpass/lumenpass/internal/health"
	"github.com/lumenpass/lumenpass/internal/metrics"
	"github.com/lumenpass/lumenpass/internal/observer"
	"github.com/lumenpass/lumenpass/internal/payment"
	"github.com/lumenpass/lumenpass/internal/realtime"
	"github.com/lumenpass/lumenpass/internal/refund"
	"github.com/lumenpass/lumenpass/internal/sponsor"
	"github.com/lumenpass/lumenpass/internal/stellar"
	"github.com/lumenpass/lumenpass/internal/ticket"
	"github.com/lumenpass/lumenpass/internal/traces"
	"github.com/lumenpass/lumenpass/internal/user"
	"github.com/lumenpass/lumenpass/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled settlement service.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *gin.Engine
	http     *http.Server
	db       *sql.DB
	hub      *realtime.Hub
	observer *observer.Observer
	health   *health.Registry

	tracerShutdown func(context.Context) error
}

// New builds the full service from configuration. With DATABASE_URL set,
// state lives in PostgreSQL; without it, everything is in-memory (demo mode).
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var (
		db           *sql.DB
		eventStore   event.Store
		paymentStore payment.Store
		ticketStore  ticket.Store
		userStore    user.Store
		sponsorStore sponsor.Store
		auditSink    audit.Logger
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		eventStore = event.NewPostgresStore(db)
		paymentStore = payment.NewPostgresStore(db)
		ticketStore = ticket.NewPostgresStore(db)
		userStore = user.NewPostgresStore(db)
		sponsorStore = sponsor.NewPostgresStore(db)
		auditSink = audit.NewPostgresLogger(db)
		logger.Info("using postgresql storage")
	} else {
		eventStore = event.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
		ticketStore = ticket.NewMemoryStore()
		userStore = user.NewMemoryStore()
		sponsorStore = sponsor.NewMemoryStore()
		auditSink = audit.NewMemoryLogger()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	cipher, err := escrow.NewCipher(cfg.EscrowEncryptionSecret)
	if err != nil {
		return nil, err
	}
	signer, err := ticket.NewSigner(cfg.TicketSigningSeed, cfg.TicketVerificationKey)
	if err != nil {
		return nil, err
	}

	chain := stellar.NewClient(cfg.HorizonURL, cfg.NetworkPassphrase, logger)

	hub := realtime.NewHub(logger)
	auditLog := realtime.NewNotifyingLogger(auditSink, hub)

	events := event.NewService(eventStore, auditLog, logger)
	custodian := escrow.NewCustodian(eventStore, chain, cipher, auditLog, logger,
		cfg.EscrowFunderSecret, cfg.EscrowStartingBalance)
	events.WithPublishHook(func(ctx context.Context, eventID string) error {
		_, err := custodian.CreateEscrow(ctx, eventID)
		return err
	})

	payments := payment.NewService(paymentStore, eventStore, chain, auditLog, logger)
	users := user.NewService(userStore, logger)
	tickets := ticket.NewService(ticketStore, payments, chain, signer, auditLog, logger)
	sponsors := sponsor.NewService(sponsorStore, eventStore, chain, auditLog, logger, cfg.SponsorWallet)
	refunds := refund.NewCoordinator(eventStore, payments, tickets, users, custodian, chain, auditLog, logger)
	obs := observer.New(chain, payments, sponsors, logger)

	registry := health.NewRegistry()
	registry.Register("horizon", func(ctx context.Context) health.Status {
		if err := chain.CheckConnectivity(ctx); err != nil {
			return health.Status{Name: "horizon", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "horizon", Healthy: true}
	})
	if db != nil {
		registry.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	registry.Register("observer", func(context.Context) health.Status {
		state := obs.State()
		return health.Status{
			Name:    "observer",
			Healthy: state == observer.StateConnected,
			Detail:  string(state),
		}
	})

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		hub:      hub,
		observer: obs,
		health:   registry,
	}
	s.router = s.buildRouter(
		event.NewHandlers(events),
		payment.NewHandlers(payments),
		ticket.NewHandlers(tickets),
		user.NewHandlers(users),
		escrow.NewHandlers(custodian),
		refund.NewHandlers(refunds),
		sponsor.NewHandlers(sponsors),
	)
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) buildRouter(
	events *event.Handlers,
	payments *payment.Handlers,
	tickets *ticket.Handlers,
	users *user.Handlers,
	escrows *escrow.Handlers,
	refunds *refund.Handlers,
	sponsors *sponsor.Handlers,
) *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())
	r.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", s.handleReady)
	r.GET("/metrics", metrics.Handler())
	r.GET("/ws", s.hub.HandleWS)

	api := r.Group("/api/v1")
	api.Use(requireIdentity())
	events.RegisterRoutes(api)
	payments.RegisterRoutes(api)
	tickets.RegisterRoutes(api)
	users.RegisterRoutes(api)
	sponsors.RegisterRoutes(api)

	admin := api.Group("")
	admin.Use(requireAdmin())
	events.RegisterAdminRoutes(admin)
	escrows.RegisterAdminRoutes(admin)
	refunds.RegisterAdminRoutes(admin)
	sponsors.RegisterAdminRoutes(admin)

	return r
}

func (s *Server) handleReady(c *gin.Context) {
	healthy, statuses := s.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"healthy": healthy, "checks": statuses})
}

// Run starts the service and blocks until SIGINT/SIGTERM, then shuts down
// gracefully: HTTP first, then the observer and hub, then storage.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if shutdown, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.logger); err != nil {
		s.logger.Warn("tracing init failed", "error", err)
	} else {
		s.tracerShutdown = shutdown
	}

	go s.hub.Run()
	s.observer.Start()
	if s.db != nil {
		metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr, "env", s.cfg.Env)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err)
	}
	s.observer.Stop()
	s.hub.Stop()
	if s.tracerShutdown != nil {
		if err := s.tracerShutdown(shutdownCtx); err != nil {
			s.logger.Error("tracer shutdown failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close failed", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
