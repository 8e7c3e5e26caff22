package api

import (
	"net/http"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/api/middleware"
	"github.com/example/localmart/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(withLogging(logger.Named("http")))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Catalog reads are public
	r.Get("/products", handlers.GetProducts)
	r.Get("/products/{id}", handlers.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))

		r.With(middleware.RequireRole(actor.RoleSeller, actor.RoleAdmin)).Group(func(r chi.Router) {
			r.Post("/products", handlers.CreateProduct)
			r.Put("/products/{id}", handlers.UpdateProduct)
			r.Delete("/products/{id}", handlers.DeleteProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireRole(actor.RoleCustomer))
			r.Get("/", handlers.GetCart)
			r.Delete("/", handlers.ClearCart)
			r.Post("/items", handlers.AddToCart)
			r.Patch("/items/{productID}", handlers.ChangeCartQuantity)
			r.Delete("/items/{productID}", handlers.RemoveFromCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handlers.GetOrders)
			r.Get("/feed", handlers.OrderFeed)
			r.With(middleware.RequireRole(actor.RoleCustomer)).Post("/", handlers.Checkout)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetOrder)
				r.With(middleware.RequireRole(actor.RoleCustomer)).Get("/tracking", handlers.TrackOrder)
				r.With(middleware.RequireRole(actor.RoleCustomer)).Post("/cancel", handlers.CancelOrder)
				r.With(middleware.RequireRole(actor.RoleSeller)).Post("/process", handlers.ProcessOrder)
				r.With(middleware.RequireRole(actor.RoleSeller, actor.RoleSystem)).Post("/deliver", handlers.DeliverOrder)
			})
		})
	})

	return r
}

func withLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
