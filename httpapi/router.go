// Package httpapi exposes a token sale over HTTP. Purchase and admin routes
// identify the caller by the X-Caller header; authentication of that header
// is left to the ingress in front of the daemon. A purchase always pays from
// the caller's account.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vitwit/tokensale"
	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

const CallerHeader = "X-Caller"

type ctxKey string

const callerKey ctxKey = "caller"

// Server serves the sale API
type Server struct {
	sale   *tokensale.TokenSale
	logger logger.Logger
}

// NewRouter builds the chi router for sale
func NewRouter(sale *tokensale.TokenSale, log logger.Logger) http.Handler {
	s := &Server{sale: sale, logger: logger.OrNoop(log)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/owner", s.handleOwner)
		r.Get("/reference-token", s.handleReferenceToken)
		r.Get("/packages", s.handlePackages)
		r.Get("/packages/{id}", s.handlePackage)
		r.Get("/packages/{id}/availability", s.handleAvailability)
		r.Get("/proxies", s.handleProxies)
		r.Get("/proxies/{token}", s.handleProxy)
		r.Get("/pending", s.handlePending)
		r.With(callerMiddleware).Post("/purchase", s.handlePurchase)

		r.Route("/admin", func(r chi.Router) {
			r.Use(callerMiddleware)

			r.Put("/proxies/{token}", s.handleSetProxy)
			r.Delete("/proxies/{token}", s.handleClearProxy)
			r.Put("/packages/{id}/price", s.handleSetPrice)
			r.Delete("/packages/{id}/price", s.handleClearPrice)
			r.Post("/packages/{id}/content", s.handleAddContent)
			r.Delete("/packages/{id}/content/{token}/{nonce}", s.handleRemoveContent)
			r.Delete("/packages/{id}", s.handleRemovePackage)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
		})
	})

	return r
}

// callerMiddleware attaches the admin caller address to the request context
func callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := utils.ParseAddress(r.Header.Get(CallerHeader))
		if err != nil {
			writeError(w, types.NewError(types.ErrInvalidPayload, "%s header: %v", CallerHeader, err))
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
