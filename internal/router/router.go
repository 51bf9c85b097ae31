package router

import (
	"fmt"
	"net/http"

	"github.com/cx-tal-miterani/rail-booking-system/internal/handlers"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "rate_limiter:pnr"

// NewRateLimiter builds the per-IP limiter for ticket lookup and
// cancellation. A nil client keeps counters in memory.
func NewRateLimiter(rate string, client *redis.Client) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:          limiterPrefix,
			MaxRetry:        3,
			CleanUpInterval: r.Period,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          limiterPrefix,
			CleanUpInterval: r.Period,
		})
	}

	return limiter.New(store, r), nil
}

// SetupRouter creates and configures the HTTP router. rateLimiter may be nil.
func SetupRouter(h *handlers.Handler, rateLimiter *limiter.Limiter) *mux.Router {
	r := mux.NewRouter()

	// CORS middleware
	r.Use(corsMiddleware)

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(handlers.SessionMiddleware)

	// Search
	api.HandleFunc("/trains", h.SearchTrains).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/seats", h.CheckSeats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/route-map", h.RouteMap).Methods(http.MethodGet, http.MethodOptions)

	// Booking session
	api.HandleFunc("/booking", h.GetBooking).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/booking/quote", h.SelectQuote).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/booking/passenger", h.SavePassenger).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/booking/pay", h.SubmitPayment).Methods(http.MethodPost, http.MethodOptions)

	// WebSocket for booking progress
	api.HandleFunc("/booking/ws", h.BookingUpdates)

	// Tickets
	tickets := api.NewRoute().Subrouter()
	if rateLimiter != nil {
		tickets.Use(stdlib.NewMiddleware(rateLimiter).Handler)
	}
	tickets.HandleFunc("/pnr", h.LookupPNR).Methods(http.MethodGet, http.MethodOptions)
	tickets.HandleFunc("/pnr/{pnr}/ticket.pdf", h.TicketPDF).Methods(http.MethodGet, http.MethodOptions)
	tickets.HandleFunc("/cancel", h.CancelTicket).Methods(http.MethodPost, http.MethodOptions)

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+handlers.SessionHeader)
		w.Header().Set("Access-Control-Expose-Headers", handlers.SessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
