package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/auth"
	"github.com/loaninneed/attribution/internal/config"
	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/http/middleware"
	"github.com/loaninneed/attribution/internal/metrics"
	"github.com/loaninneed/attribution/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, zl *zap.Logger) *Server {
	// repos (MySQL)
	partnersRepo := repository.NewPartnersRepository(mysqlDB)
	usersRepo := repository.NewUsersRepository(mysqlDB)
	loansRepo := repository.NewLoansRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	ledgerRepo := repository.NewLedgerRepository(mysqlDB, outboxRepo, cfg.Kafka.Topic)

	// repos (ClickHouse)
	chEventsRepo := repository.NewCHEventsRepository(clickhouseDB)

	// attribution core
	vault := crypto.NewVault(cfg.Attribution.MasterKey)
	gate := attribution.NewGate(partnersRepo, vault, cfg.Attribution.ToleranceMs, nil)
	locker := attribution.NewLocker(usersRepo, ledgerRepo, nil, zl)
	attrSvc := attribution.NewService(gate, locker, ledgerRepo, nil, zl)
	issuer := attribution.NewIssuer(partnersRepo, vault, cfg.Attribution.FrontendBase, nil)

	// collaborators
	sessions := auth.NewRedisSessionStore(rds, 0)
	otp := auth.NewRedisOTPVerifier(sessions)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	sessionMW := middleware.SessionMiddleware(sessions, usersRepo)
	gateMW := middleware.AttributionMiddleware(attrSvc)
	partnerMW := middleware.PartnerKeyMiddleware(partnersRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ptn:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// customer-facing routes: session first so the gate can see an
	// authenticated user, then the fail-open attribution gate
	v1 := e.Group("/v1", sessionMW, gateMW)
	v1.POST("/auth/verify-otp", verifyOTPHandler(otp, sessions, usersRepo, attrSvc))
	v1.POST("/loans/apply", loanApplyHandler(loansRepo, attrSvc), middleware.RequireUser)

	// partner-facing routes
	partner := e.Group("/v1/partner", partnerMW, rlMW)
	partner.POST("/links", issueLinkHandler(issuer))
	partner.GET("/dashboard", partnerDashboardHandler(chEventsRepo, loansRepo))

	// ops
	e.POST("/v1/partners", registerPartnerHandler(partnersRepo, vault))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
