// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

type requestInfoKey struct{}

// WithRequestInfo stores the resolved client network in ctx.
func WithRequestInfo(ctx context.Context, info domain.RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the network resolved by the bot detection
// middleware for this request.
func RequestInfoFromContext(ctx context.Context) (domain.RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(domain.RequestInfo)
	return info, ok
}

// NewBotDetectionMiddleware avalia cada requisição com o admitter antes do
// handler. routes resolve o padrão de rota do chi ("/client{token}.css"), que
// é a chave da tabela de filtros; sem correspondência usa-se o path literal.
func NewBotDetectionMiddleware(admitter ports.Admitter, routes chi.Routes, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if admitter == nil {
				next.ServeHTTP(w, r)
				return
			}

			route := RoutePattern(routes, r)
			info, decision := admitter.Admit(r.Context(), route, r)
			if decision.Rejected {
				logger.Debug("request rejected", "network", info.NetworkKey(), "route", route, "reason", decision.Reason)
				writeRejection(w, decision)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRequestInfo(r.Context(), info)))
		})
	}
}

// RoutePattern returns the chi pattern that would serve r, or r.URL.Path.
func RoutePattern(routes chi.Routes, r *http.Request) string {
	if routes != nil {
		rctx := chi.NewRouteContext()
		if routes.Match(rctx, r.Method, r.URL.Path) {
			if pattern := rctx.RoutePattern(); pattern != "" {
				return pattern
			}
		}
	}
	return r.URL.Path
}

func writeRejection(w http.ResponseWriter, decision domain.Decision) {
	status := decision.StatusCode
	if status == 0 {
		status = http.StatusTooManyRequests
	}
	message := decision.Message
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
