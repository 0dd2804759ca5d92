package api

import (
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/api/handler"
	"github.com/ayo6706/delivery-marketplace/internal/api/middleware"
	"github.com/ayo6706/delivery-marketplace/internal/api/spec"
	"github.com/ayo6706/delivery-marketplace/internal/config"
	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/idempotency"
	"github.com/ayo6706/delivery-marketplace/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the domain services the HTTP layer talks to.
type Services struct {
	Users          *service.UserService
	Announcements  *service.AnnouncementService
	Matching       *service.MatchingService
	Handoff        *service.HandoffService
	Escrow         *service.EscrowService
	Ledger         *service.LedgerService
	Withdrawals    *service.WithdrawalService
	Documents      *service.DocumentService
	Reconciliation *service.ReconciliationService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        handler.Pinger
	idemStore *idempotency.Store
	redis     redis.Cmdable
	svc       Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, idemStore *idempotency.Store, redis redis.Cmdable, svc Services) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, idemStore: idemStore, redis: redis, svc: svc}
}

var verifiedRoles = []string{domain.RoleDeliverer, domain.RoleProvider, domain.RoleMerchant}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	authHandler := handler.NewAuthHandler(api.svc.Users, 0)
	userHandler := handler.NewUserHandler(api.svc.Users)
	announcementHandler := handler.NewAnnouncementHandler(api.svc.Announcements, api.svc.Matching)
	deliveryHandler := handler.NewDeliveryHandler(api.svc.Handoff)
	walletHandler := handler.NewWalletHandler(api.svc.Ledger)
	withdrawalHandler := handler.NewWithdrawalHandler(api.svc.Withdrawals)
	documentHandler := handler.NewDocumentHandler(api.svc.Documents)
	adminHandler := handler.NewAdminHandler(api.svc.Escrow, api.svc.Reconciliation)

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.CreateUser)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))
		r.Use(middleware.IdempotencyMiddleware(api.idemStore, api.logger))

		client := middleware.RequireRole(domain.RoleClient)
		deliverer := middleware.RequireRole(domain.RoleDeliverer)
		verified := middleware.RequireRole(verifiedRoles...)
		admin := middleware.RequireRole(domain.RoleAdmin)

		// Announcements
		r.With(client).Post("/v1/announcements", announcementHandler.Create)
		r.With(deliverer).Get("/v1/announcements", announcementHandler.ListAvailable)
		r.With(client).Get("/v1/announcements/mine", announcementHandler.ListMine)
		r.Get("/v1/announcements/{id}", announcementHandler.Get)
		r.With(client).Post("/v1/announcements/{id}/publish", announcementHandler.Publish)
		r.With(client).Post("/v1/announcements/{id}/cancel", announcementHandler.Cancel)
		r.Get("/v1/announcements/{id}/delivery", deliveryHandler.ForAnnouncement)
		r.With(deliverer).Post("/v1/announcements/{id}/claim", announcementHandler.Claim)

		// Deliveries
		r.With(deliverer).Get("/v1/deliveries", deliveryHandler.ListMine)
		r.Get("/v1/deliveries/{id}", deliveryHandler.Get)
		r.Get("/v1/deliveries/{id}/logs", deliveryHandler.Logs)
		r.With(deliverer).Post("/v1/deliveries/{id}/status", deliveryHandler.AdvanceStatus)
		r.With(deliverer, middleware.ConfirmRateLimiter(api.cfg.ConfirmRatePerMinute)).Post("/v1/deliveries/{id}/confirm", deliveryHandler.Confirm)
		r.Post("/v1/deliveries/{id}/cancel", deliveryHandler.Cancel)
		r.Post("/v1/deliveries/{id}/problem", deliveryHandler.ReportProblem)

		// Wallet
		r.Get("/v1/wallet", walletHandler.Get)
		r.Get("/v1/wallet/transactions", walletHandler.Transactions)

		// Withdrawals
		r.With(verified).Post("/v1/withdrawals", withdrawalHandler.Create)
		r.Get("/v1/withdrawals", withdrawalHandler.ListMine)
		r.Get("/v1/withdrawals/stats", withdrawalHandler.Stats)
		r.Post("/v1/withdrawals/{id}/cancel", withdrawalHandler.Cancel)

		// Documents
		r.With(verified).Post("/v1/documents", documentHandler.Submit)
		r.With(verified).Get("/v1/documents", documentHandler.ListMine)
		r.Get("/v1/documents/{id}/download", documentHandler.Download)
		r.With(verified).Get("/v1/profile", documentHandler.Profile)

		// Admin
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(admin)
			r.Get("/documents/pending", documentHandler.ListPending)
			r.Post("/documents/{id}/review", documentHandler.Review)
			r.Post("/profiles/{userID}/reject", documentHandler.RejectProfile)
			r.Get("/withdrawals/pending", withdrawalHandler.ListPending)
			r.Post("/withdrawals/{id}/review", withdrawalHandler.Review)
			r.Post("/withdrawals/{id}/finalize", withdrawalHandler.Finalize)
			r.Get("/payments/{id}", adminHandler.GetPayment)
			r.Post("/payments/{id}/release", adminHandler.ReleasePayment)
			r.Post("/payments/{id}/refund", adminHandler.RefundPayment)
			r.Post("/reconciliation", adminHandler.Reconcile)
		})
	})

	return r
}
