// Package api exposes the engine over HTTP: payment-session creation, the
// provider webhook, order status, availability listings, and operator
// endpoints for the refund ledger.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Latasoft/CitySoccer-sub001/internal/audit"
	"github.com/Latasoft/CitySoccer-sub001/internal/availability"
	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/reconciler"
	"github.com/Latasoft/CitySoccer-sub001/internal/service"
)

// HTTPServer serves the engine's HTTP surface.
type HTTPServer struct {
	server     *http.Server
	payments   *service.PaymentService
	reconciler *reconciler.Reconciler
	guard      *availability.Guard
	exporter   *audit.Exporter
	db         *database.DB
	hours      availability.Hours
	apiKey     string
	limiter    *rate.Limiter
	log        *zerolog.Logger
}

// Options configures the HTTP server.
type Options struct {
	Port        int
	APIKey      string // operator endpoints; empty disables them
	CreateRate  int    // payment-create requests per second
	CreateBurst int
	Hours       availability.Hours
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(
	opts Options,
	payments *service.PaymentService,
	rec *reconciler.Reconciler,
	guard *availability.Guard,
	exporter *audit.Exporter,
	db *database.DB,
	logger *zerolog.Logger,
) *HTTPServer {
	if opts.CreateRate <= 0 {
		opts.CreateRate = 5
	}
	if opts.CreateBurst <= 0 {
		opts.CreateBurst = 10
	}

	s := &HTTPServer{
		payments:   payments,
		reconciler: rec,
		guard:      guard,
		exporter:   exporter,
		db:         db,
		hours:      opts.Hours,
		apiKey:     opts.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(opts.CreateRate), opts.CreateBurst),
		log:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/payment/create", s.handlePaymentCreate)
	mux.HandleFunc("/api/payment/webhook", s.handlePaymentWebhook)
	mux.HandleFunc("/api/payment/status/", s.handlePaymentStatus)
	mux.HandleFunc("/api/availability", s.handleAvailability)
	mux.HandleFunc("/api/intents", s.requireAPIKey(s.handleIntentList))
	mux.HandleFunc("/api/refunds/export", s.requireAPIKey(s.handleRefundExport))
	mux.HandleFunc("/api/refunds/resolve", s.requireAPIKey(s.handleRefundResolve))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the route handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server started")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Header.Get("X-Api-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
