package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	// MetricsGatherer が nil の場合 /metrics は公開しない。
	MetricsGatherer prometheus.Gatherer
	HealthChecker   HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	UserService     UserServiceInterface
	DivisionService DivisionServiceInterface
	VenueService    VenueServiceInterface
	LedgerService   LedgerServiceInterface
	CatalogService  CatalogServiceInterface
	RatingService   RatingServiceInterface
	FeedbackService FeedbackServiceInterface
	WorkflowService WorkflowServiceInterface
	ReportService   ReportServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	StripSlashes → Recovery → Logging → Metrics → CORS → SecurityHeaders
//	→ (API) Auth → RateLimit(General) → ルートごとの認可
//
// 認証ルート（/signup, /login など）は認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	generalLimit, authLimit := passThrough, passThrough
	if deps.RateLimiter != nil {
		generalLimit = deps.RateLimiter.GeneralMiddleware()
		authLimit = deps.RateLimiter.AuthMiddleware()
	}

	r := chi.NewRouter()
	r.Use(chimw.StripSlashes)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	divisionHandler := NewDivisionHandler(deps.DivisionService)
	venueHandler := NewVenueHandler(deps.VenueService)
	ledgerHandler := NewLedgerHandler(deps.LedgerService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	ratingHandler := NewRatingHandler(deps.RatingService)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService)
	requestHandler := NewRequestHandler(deps.WorkflowService)
	reportHandler := NewReportHandler(deps.ReportService)

	// --- 運用 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(authLimit)
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
	})
	r.Post("/logout", authHandler.Logout)
	r.Post("/refresh-token", authHandler.Refresh)
	r.Method(http.MethodGet, "/csrf-token", authHandler.CSRFToken())
	r.Get("/test-connection", TestConnection)

	// --- API ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(generalLimit)

		r.Route("/public-users", func(r chi.Router) {
			r.Get("/", userHandler.PublicList)
			r.Get("/{id}", userHandler.PublicGet)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/", userHandler.List)
			r.With(middleware.RequireAdmin).Post("/", userHandler.Create)

			r.Get("/me", userHandler.Me)
			r.Put("/me", userHandler.UpdateMe)
			r.Patch("/me", userHandler.UpdateMe)
			r.Post("/top_attendance", reportHandler.TopAttendance)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Put("/", userHandler.Update)
				r.Patch("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
				r.Post("/add_division", userHandler.AddDivision)
				r.Post("/remove_division", userHandler.RemoveDivision)
				r.With(middleware.RequireAdmin).Post("/permissions", userHandler.Permissions)
			})
		})

		r.Route("/divisions", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", divisionHandler.List)
			r.Post("/", divisionHandler.Create)

			// 集計系は {id} より先に登録する
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Post("/users/{user_id}/all", reportHandler.UserDivisionStats)
				r.Post("/get_all_users_divisions_details", reportHandler.AllDivisionStats)
				r.Get("/user/{user_id}/venues", requestHandler.UserVenues)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", divisionHandler.Get)
				r.Put("/", divisionHandler.Update)
				r.Patch("/", divisionHandler.Update)
				r.Delete("/", divisionHandler.Delete)

				r.Post("/create_venue", divisionHandler.CreateVenue)
				r.Post("/remove_venue", divisionHandler.RemoveVenue)
				r.Post("/process_venue_response", requestHandler.ProcessVenueResponse)

				r.Get("/get_users", divisionHandler.Users)
				r.Get("/songs", divisionHandler.Songs)
				r.Get("/attendance_stats", reportHandler.DivisionAttendanceStats)
				r.Get("/ratings_stats", reportHandler.RatingsStats)
			})
		})

		r.Route("/venues", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", venueHandler.List)
			r.Post("/", venueHandler.Create)
			r.Get("/upcoming", venueHandler.Upcoming)
			r.Get("/with_division", venueHandler.WithDivision)
			r.Get("/upcoming-with-division", venueHandler.UpcomingWithDivision)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", venueHandler.Get)
				r.Put("/", venueHandler.Update)
				r.Patch("/", venueHandler.Update)
				r.Delete("/", venueHandler.Delete)
				r.Get("/divisions", venueHandler.Divisions)
			})
		})

		r.Route("/songs", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", catalogHandler.ListSongs)
			r.Post("/", catalogHandler.CreateSong)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetSong)
				r.Put("/", catalogHandler.UpdateSong)
				r.Patch("/", catalogHandler.UpdateSong)
				r.Delete("/", catalogHandler.DeleteSong)
				r.Get("/divisions", catalogHandler.SongDivisions)
			})
		})

		r.Route("/attendances", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/", ledgerHandler.ListAttendances)
			r.Post("/", ledgerHandler.CreateAttendance)
			r.Post("/bulk_create", ledgerHandler.BulkCreateAttendances)
			r.Post("/monthly_attendance", reportHandler.MonthlyAttendance)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ledgerHandler.GetAttendance)
				r.Put("/", ledgerHandler.UpdateAttendance)
				r.Patch("/", ledgerHandler.UpdateAttendance)
				r.Delete("/", ledgerHandler.DeleteAttendance)
			})
		})

		r.Route("/absents", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/", ledgerHandler.ListAbsents)
			r.Post("/", ledgerHandler.CreateAbsent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ledgerHandler.GetAbsent)
				r.Put("/", ledgerHandler.UpdateAbsent)
				r.Patch("/", ledgerHandler.UpdateAbsent)
				r.Delete("/", ledgerHandler.DeleteAbsent)
			})
		})

		r.Route("/ratings", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", ratingHandler.List)
			r.Post("/", ratingHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", ratingHandler.Get)
				r.Put("/", ratingHandler.Update)
				r.Patch("/", ratingHandler.Update)
				r.Delete("/", ratingHandler.Delete)
			})
		})

		r.Route("/performances", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", catalogHandler.ListPerformances)
			r.Post("/", catalogHandler.CreatePerformance)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetPerformance)
				r.Put("/", catalogHandler.UpdatePerformance)
				r.Patch("/", catalogHandler.UpdatePerformance)
				r.Delete("/", catalogHandler.DeletePerformance)
			})
		})

		r.Route("/pending-requests", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/", requestHandler.List)
			r.Post("/", requestHandler.Create)
			r.Get("/venues", requestHandler.PendingVenues)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", requestHandler.Get)
				r.Put("/", requestHandler.Update)
				r.Patch("/", requestHandler.Update)
				r.Delete("/", requestHandler.Delete)
				r.Post("/approve", requestHandler.Approve)
				r.Post("/reject", requestHandler.Reject)
				r.Post("/reset", requestHandler.Reset)
			})
		})

		r.Route("/feedbacks", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/", feedbackHandler.List)
			r.Post("/", feedbackHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", feedbackHandler.Get)
				r.Put("/", feedbackHandler.Update)
				r.Patch("/", feedbackHandler.Update)
				r.Delete("/", feedbackHandler.Delete)
			})
		})

		r.Route("/activities", func(r chi.Router) {
			r.Use(middleware.ReadOnlyOrAuth)
			r.Get("/", catalogHandler.ListActivities)
			r.Post("/", catalogHandler.CreateActivity)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.GetActivity)
				r.Put("/", catalogHandler.UpdateActivity)
				r.Patch("/", catalogHandler.UpdateActivity)
				r.Delete("/", catalogHandler.DeleteActivity)
			})
		})
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
