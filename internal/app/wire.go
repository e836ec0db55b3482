package app

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/rollcall/internal/auth"
	"github.com/hitoshi/rollcall/internal/catalog"
	"github.com/hitoshi/rollcall/internal/config"
	"github.com/hitoshi/rollcall/internal/division"
	"github.com/hitoshi/rollcall/internal/feedback"
	"github.com/hitoshi/rollcall/internal/handler"
	"github.com/hitoshi/rollcall/internal/ledger"
	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/rating"
	"github.com/hitoshi/rollcall/internal/report"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/revocation"
	"github.com/hitoshi/rollcall/internal/security"
	"github.com/hitoshi/rollcall/internal/token"
	"github.com/hitoshi/rollcall/internal/user"
	"github.com/hitoshi/rollcall/internal/venue"
	"github.com/hitoshi/rollcall/internal/workflow"
)

// API はワイヤリング済みのHTTPハンドラーと、その後始末に必要なリソース。
type API struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	limiter  *middleware.RateLimiter
}

// Close はレート制限の掃除goroutineを止める。
func (a *API) Close() {
	a.limiter.Stop()
}

// NewAPI はリポジトリ → サービス → ルーターの順に依存関係を組み立てる。
// revoked がnilの場合は失効リストのキャッシュを使わない。
func NewAPI(cfg *config.Config, db *sql.DB, revoked revocation.List, logger *slog.Logger) *API {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	divisionRepo := repository.NewPostgresDivisionRepo(db)
	venueRepo := repository.NewPostgresVenueRepo(db)
	requestRepo := repository.NewPostgresPendingRequestRepo(db)
	ledgerRepo := repository.NewPostgresLedgerRepo(db)
	songRepo := repository.NewPostgresSongRepo(db)
	performanceRepo := repository.NewPostgresPerformanceRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	ratingRepo := repository.NewPostgresRatingRepo(db)
	feedbackRepo := repository.NewPostgresFeedbackRepo(db)
	refreshRepo := repository.NewPostgresRefreshTokenRepo(db)

	plainText := security.NewTextSanitizer()

	// サービス
	tokens := token.NewManager(token.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	authService := auth.NewService(userRepo, divisionRepo, tokens, refreshRepo, revoked, collector)
	userService := user.NewService(userRepo, divisionRepo)
	divisionService := division.NewService(division.Repos{
		Divisions:    divisionRepo,
		Venues:       venueRepo,
		Requests:     requestRepo,
		Songs:        songRepo,
		Ledger:       ledgerRepo,
		Ratings:      ratingRepo,
		Performances: performanceRepo,
		Users:        userRepo,
	}, plainText)
	venueService := venue.NewService(venueRepo, divisionRepo)
	ledgerService := ledger.NewService(ledgerRepo, venueRepo, divisionRepo, collector)
	catalogService := catalog.NewService(catalog.Deps{
		Songs:        songRepo,
		Performances: performanceRepo,
		Activities:   activityRepo,
		Divisions:    divisionRepo,
		Venues:       venueRepo,
		RichText:     security.NewRichTextSanitizer(),
	})
	ratingService := rating.NewService(ratingRepo, divisionRepo)
	feedbackService := feedback.NewService(feedbackRepo, userRepo, plainText)
	workflowService := workflow.NewService(requestRepo, divisionRepo, venueRepo, userRepo, collector,
		workflow.Options{StrictClaimantLookup: cfg.StrictClaimantLookup})
	reportService := report.NewService(ledgerRepo, divisionRepo, userRepo, ratingRepo)

	// ルーター
	limiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		limiterCfg.GeneralPerMinute = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAuth > 0 {
		limiterCfg.AuthPerMinute = cfg.RateLimitAuth
	}
	limiter := middleware.NewRateLimiter(limiterCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       limiter,
		Logger:            logger,
		Metrics:           collector,
		MetricsGatherer:   reg,
		HealthChecker:     db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CSRFMaxAge:   cfg.CSRFCookieMaxAge,
		},

		UserService:     userService,
		DivisionService: divisionService,
		VenueService:    venueService,
		LedgerService:   ledgerService,
		CatalogService:  catalogService,
		RatingService:   ratingService,
		FeedbackService: feedbackService,
		WorkflowService: workflowService,
		ReportService:   reportService,
	})

	return &API{Handler: router, Registry: reg, limiter: limiter}
}
