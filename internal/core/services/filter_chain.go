package services

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

// WildcardRoute é usada quando a rota não tem entrada própria.
const WildcardRoute = "*"

// RouteFilterTable mapeia rota -> lista ordenada de filtros. É imutável depois
// de construída. Uma rota presente com lista vazia sempre permite.
type RouteFilterTable struct {
	routes map[string][]ports.Filter
}

func NewRouteFilterTable(routes map[string][]ports.Filter) *RouteFilterTable {
	copied := make(map[string][]ports.Filter, len(routes))
	for route, filters := range routes {
		copied[route] = append(make([]ports.Filter, 0, len(filters)), filters...)
	}
	return &RouteFilterTable{routes: copied}
}

// Lookup returns the filters for route, falling back to the wildcard entry.
func (t *RouteFilterTable) Lookup(route string) []ports.Filter {
	if t == nil {
		return nil
	}
	if filters, ok := t.routes[route]; ok {
		return filters
	}
	return t.routes[WildcardRoute]
}

// Routes returns the configured route keys, sorted.
func (t *RouteFilterTable) Routes() []string {
	routes := make([]string, 0, len(t.routes))
	for route := range t.routes {
		routes = append(routes, route)
	}
	slices.Sort(routes)
	return routes
}

// Evaluate runs the filters of route in declared order and returns the first
// rejection together with the name of the filter that produced it.
func (t *RouteFilterTable) Evaluate(ctx context.Context, route string, dc *ports.DetectionContext, info domain.RequestInfo, r *http.Request) (domain.Decision, string, error) {
	for _, filter := range t.Lookup(route) {
		decision, err := filter.Apply(ctx, dc, info, r)
		if err != nil {
			return domain.Allow, filter.Name(), fmt.Errorf("filter %s: %w", filter.Name(), err)
		}
		if decision.Rejected {
			return decision, filter.Name(), nil
		}
	}
	return domain.Allow, "", nil
}
