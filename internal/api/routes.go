package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Live updates hijack or hold the connection, so they skip the timeout.
		r.Get("/stream", h.HandleWebSocket)
		r.Get("/stream/sse", h.HandleSSE)

		r.Group(func(r chi.Router) {
			r.Use(m.Compress)
			r.Use(m.Timeout(15 * time.Second))
			h.mountV1(r)
		})
	})

	return r
}

func (h *Handler) mountV1(r chi.Router) {
	r.Get("/assets", h.ListAssets)

	r.Route("/protocol", func(r chi.Router) {
		r.Get("/constants", h.GetConstants)
		r.Get("/totals", h.GetTotals)
	})

	r.Route("/users/{address}", func(r chi.Router) {
		r.Get("/account", h.GetAccount)
		r.Get("/health", h.GetHealth)
		r.Get("/collateral/{asset}", h.GetCollateral)
		r.Get("/balances", h.GetBalances)
		r.Get("/events", h.GetUserEvents)
	})

	// Mutations act for the address in X-User-Address.
	r.Route("/positions", func(r chi.Router) {
		r.Post("/deposit", h.Deposit)
		r.Post("/mint", h.Mint)
		r.Post("/deposit-and-mint", h.DepositAndMint)
		r.Post("/redeem", h.Redeem)
		r.Post("/burn", h.Burn)
		r.Post("/redeem-and-burn", h.RedeemAndBurn)
		r.Post("/liquidate", h.Liquidate)
	})

	r.Post("/tokens/approve", h.Approve)

	if h.dev {
		r.Route("/dev", func(r chi.Router) {
			r.Post("/prices", h.SetDevPrice)
			r.Post("/faucet", h.Faucet)
		})
	}
}
