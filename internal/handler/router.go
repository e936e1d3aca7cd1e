package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/orderbot/internal/metrics"
	custommiddleware "github.com/mmeshcher/orderbot/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса заявок.
// metricsHandler отдаётся на /metrics, если не nil.
func (h *Handler) SetupRouter(m *metrics.Metrics, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json", "text/plain"))
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(m.Middleware)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.With(custommiddleware.GatewayOnly(h.gatewayToken)).Post("/users", h.RegisterUser)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cities", h.FindCity)
			r.Get("/cities/{cityID}/products", h.ProductsInCity)
			r.Get("/cities/{cityID}/products/{productID}/districts", h.DistrictsForProduct)
			r.Get("/payment-methods", h.PaymentMethods)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/{number}", h.GetOrder)
			r.Post("/orders/{number}/confirm", h.ConfirmOrder)
			r.Post("/orders/{number}/cancel", h.CancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.AdminOnly(h.service.IsAdmin))

			r.Get("/cities", h.ListCities)
			r.Post("/cities", h.CreateCity)
			r.Put("/cities/{cityID}", h.UpdateCity)
			r.Delete("/cities/{cityID}", h.DeleteCity)
			r.Get("/cities/{cityID}/districts", h.ListDistricts)
			r.Post("/cities/{cityID}/districts", h.CreateDistrict)

			r.Delete("/districts/{districtID}", h.DeleteDistrict)
			r.Put("/districts/{districtID}/products/{productID}", h.AddProductToDistrict)
			r.Delete("/districts/{districtID}/products/{productID}", h.RemoveProductFromDistrict)

			r.Get("/products", h.ListProducts)
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{productID}", h.UpdateProduct)
			r.Delete("/products/{productID}", h.DeleteProduct)

			r.Get("/payment-methods", h.ListPaymentMethods)
			r.Post("/payment-methods", h.CreatePaymentMethod)
			r.Patch("/payment-methods/{code}", h.UpdatePaymentMethod)
			r.Delete("/payment-methods/{code}", h.DeletePaymentMethod)

			r.Post("/users/{userID}/block", h.BlockUser)
			r.Delete("/users/{userID}/block", h.UnblockUser)

			r.Get("/settings", h.ListSettings)
			r.Get("/settings/{key}", h.GetSetting)
			r.Put("/settings/{key}", h.SetSetting)

			r.Get("/export", h.Export)
			r.Post("/import", h.Import)
			r.Get("/stats", h.Stats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
