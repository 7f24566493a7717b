// Package handlers agrupa os handlers HTTP do link token e da aplicação de exemplo.
package handlers

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/dalf/botdetection/internal/adapters/http/middleware"
	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

// PingRoute é o padrão chi do recurso que os navegadores buscam.
const PingRoute = "/client{token}.css"

var linkTag = template.Must(template.New("link_token").Parse(
	`<link rel="stylesheet" href="/client{{.}}.css" type="text/css">`))

// Resolver derives the client network when the middleware did not run.
type Resolver interface {
	Resolve(r *http.Request) domain.RequestInfo
}

type LinkToken struct {
	challenge ports.LinkTokenChallenge
	resolver  Resolver
	logger    *log.Logger
}

func NewLinkToken(challenge ports.LinkTokenChallenge, resolver Resolver, logger *log.Logger) *LinkToken {
	if logger == nil {
		logger = log.Default()
	}
	return &LinkToken{challenge: challenge, resolver: resolver, logger: logger}
}

// Ping serves PingRoute. The response is always an empty stylesheet so a
// client cannot tell whether its token was accepted.
func (h *LinkToken) Ping(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.challenge.Ping(r.Context(), h.requestInfo(r).Network, token); err != nil {
		h.logger.Error("link token ping failed", "error", err)
	}

	w.Header().Set("Content-Type", "text/css")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

// HTMLHeader renders the <link> tag embedding the token of the request's
// network. Store failures yield an empty string.
func (h *LinkToken) HTMLHeader(r *http.Request) template.HTML {
	header, err := h.render(r.Context(), h.requestInfo(r))
	if err != nil {
		h.logger.Error("link token unavailable", "error", err)
		return ""
	}
	return header
}

func (h *LinkToken) render(ctx context.Context, info domain.RequestInfo) (template.HTML, error) {
	token, err := h.challenge.Issue(ctx, info.Network)
	if err != nil {
		return "", fmt.Errorf("issue link token: %w", err)
	}
	var buf strings.Builder
	if err := linkTag.Execute(&buf, token); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (h *LinkToken) requestInfo(r *http.Request) domain.RequestInfo {
	if info, ok := middleware.RequestInfoFromContext(r.Context()); ok {
		return info
	}
	return h.resolver.Resolve(r)
}
