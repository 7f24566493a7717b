package ports

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dalf/botdetection/internal/core/domain"
)

// FilterContractVersion identifica a assinatura de Filter abaixo. Qualquer
// mudança em Apply ou em DetectionContext que quebre filtros externos incrementa.
const FilterContractVersion = 1

// Counter é a janela deslizante vista pelos filtros.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Drop(ctx context.Context, key string) error
	Block(ctx context.Context, key string, duration time.Duration) error
	IsBlocked(ctx context.Context, key string) (bool, error)
}

// LinkTokenChallenge é a sonda "este cliente renderiza a página?".
type LinkTokenChallenge interface {
	Issue(ctx context.Context, network netip.Prefix) (string, error)
	Ping(ctx context.Context, network netip.Prefix, token string) error
	Pings(ctx context.Context, network netip.Prefix) (int64, error)
	Pinged(ctx context.Context, network netip.Prefix) (bool, error)
}

// DetectionContext agrupa configuração e handles compartilhados pelos filtros.
type DetectionContext struct {
	Config    *domain.DetectionConfig
	Counter   Counter
	LinkToken LinkTokenChallenge
	Logger    *log.Logger
}

// Filter decide sobre uma requisição. Condições de "é bot" voltam como
// Decision rejeitada; error fica reservado para falhas de infraestrutura.
type Filter interface {
	Name() string
	Apply(ctx context.Context, dc *DetectionContext, info domain.RequestInfo, r *http.Request) (domain.Decision, error)
}

type FilterFunc func(ctx context.Context, dc *DetectionContext, info domain.RequestInfo, r *http.Request) (domain.Decision, error)

type namedFilter struct {
	name string
	fn   FilterFunc
}

func NewFilter(name string, fn FilterFunc) Filter {
	return namedFilter{name: name, fn: fn}
}

func (f namedFilter) Name() string {
	return f.name
}

func (f namedFilter) Apply(ctx context.Context, dc *DetectionContext, info domain.RequestInfo, r *http.Request) (domain.Decision, error) {
	return f.fn(ctx, dc, info, r)
}
