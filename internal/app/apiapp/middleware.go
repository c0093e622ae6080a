package apiapp

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	gatewaysvc "github.com/ivankudzin/payhooks/internal/services/gateways"
	"github.com/ivankudzin/payhooks/internal/services/webhookauth"
	httperrors "github.com/ivankudzin/payhooks/internal/transport/http/errors"
)

func ApplyMiddlewares(r chiRouter, log *zap.Logger, requestTimeout time.Duration) {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(requestLogger(log))
}

// WebhookAuthMiddleware resolves the {gateway} route parameter and checks the
// shared secret before the body is read. Rejected requests perform no writes.
func WebhookAuthMiddleware(verifier *webhookauth.Verifier, gateways *gatewaysvc.Registry, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || gateways == nil {
				httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
					Code:    "AUTH_SERVICE_UNAVAILABLE",
					Message: "webhook authentication is unavailable",
				})
				return
			}

			gw, err := gateways.Lookup(chi.URLParam(r, "gateway"))
			if err != nil {
				httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
					Code:    "UNKNOWN_GATEWAY",
					Message: "unknown gateway",
				})
				return
			}

			verification, err := verifier.Verify(gw.Name(), gw.KeyHeader(), r.Header)
			if err != nil {
				if log != nil {
					log.Warn("webhook authentication failed",
						zap.String("gateway", string(gw.Name())),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Bool("gateway_not_configured", errors.Is(err, webhookauth.ErrGatewayNotAllowed)),
					)
				}
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "invalid webhook key",
				})
				return
			}
			if !verification.Signed && log != nil {
				log.Warn("accepting unsigned webhook", zap.String("gateway", string(gw.Name())))
			}

			next.ServeHTTP(w, r.WithContext(webhookauth.WithVerification(r.Context(), verification)))
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
