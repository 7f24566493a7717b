package filters

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
	"github.com/dalf/botdetection/internal/core/services"
)

// Registry resolve nomes de filtros usados na configuração de rotas.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]ports.Filter
}

// NewRegistry returns a registry holding the predefined filters.
func NewRegistry() *Registry {
	reg := &Registry{filters: make(map[string]ports.Filter)}
	for _, f := range Predefined() {
		reg.filters[f.Name()] = f
	}
	return reg
}

func Predefined() []ports.Filter {
	return []ports.Filter{
		HTTPAccept(),
		HTTPAcceptEncoding(),
		HTTPAcceptLanguage(),
		HTTPConnection(),
		HTTPUserAgent(),
		IPLimit(),
	}
}

// Register adds a custom filter under its own name. Names in the
// "rate_limit:" namespace are reserved.
func (r *Registry) Register(f ports.Filter) error {
	if f == nil || f.Name() == "" {
		return fmt.Errorf("filter must have a name")
	}
	if _, ok := rateLimitMethod(f.Name()); ok {
		return fmt.Errorf("filter name %q is reserved", f.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.filters[f.Name()]; exists {
		return fmt.Errorf("filter %q already registered", f.Name())
	}
	r.filters[f.Name()] = f
	return nil
}

// Lookup resolves name, building "rate_limit:<method>" filters on demand.
func (r *Registry) Lookup(name string) (ports.Filter, error) {
	if method, ok := rateLimitMethod(name); ok {
		return RateLimit(method), nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFilter, name)
	}
	return f, nil
}

// BuildTable turns the configured route -> filter names table into a
// RouteFilterTable. Every rate_limit method must have a rule in cfg.
func (r *Registry) BuildTable(cfg *domain.DetectionConfig) (*services.RouteFilterTable, error) {
	routes := make(map[string][]ports.Filter, len(cfg.Routes))
	for route, names := range cfg.Routes {
		list := make([]ports.Filter, 0, len(names))
		for _, name := range names {
			if method, ok := rateLimitMethod(name); ok {
				if _, ok := cfg.RateLimits[method]; !ok {
					return nil, fmt.Errorf("route %s: %w: %q has no rate limit rule", route, domain.ErrUnknownFilter, name)
				}
			}
			f, err := r.Lookup(name)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", route, err)
			}
			list = append(list, f)
		}
		routes[route] = list
	}
	return services.NewRouteFilterTable(routes), nil
}

// When runs f only for requests that match; others pass through.
func When(name string, match func(*http.Request) bool, f ports.Filter) ports.Filter {
	return ports.NewFilter(name, func(ctx context.Context, dc *ports.DetectionContext, info domain.RequestInfo, r *http.Request) (domain.Decision, error) {
		if !match(r) {
			return domain.Allow, nil
		}
		return f.Apply(ctx, dc, info, r)
	})
}
