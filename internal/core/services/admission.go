package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
	"github.com/dalf/botdetection/internal/metrics"
)

// Dependencies agrega o que o motor de admissão precisa.
type Dependencies struct {
	Config    *domain.DetectionConfig
	Resolver  *NetworkResolver
	Lists     *IPListMatcher
	Table     *RouteFilterTable
	Counter   ports.Counter
	LinkToken ports.LinkTokenChallenge
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

// AdmissionEngine decide, uma vez por requisição, entre permitir e rejeitar.
type AdmissionEngine struct {
	cfg       *domain.DetectionConfig
	resolver  *NetworkResolver
	lists     *IPListMatcher
	table     *RouteFilterTable
	detection *ports.DetectionContext
	logger    *log.Logger
	metrics   *metrics.Metrics
}

var _ ports.Admitter = (*AdmissionEngine)(nil)

func NewAdmissionEngine(deps Dependencies) (*AdmissionEngine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("detection config is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("network resolver is required")
	}
	if deps.Lists == nil {
		deps.Lists = NewIPListMatcher(nil, nil)
	}
	if deps.Table == nil {
		deps.Table = NewRouteFilterTable(nil)
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Counter == nil {
		deps.Counter = noCounter{}
	}

	return &AdmissionEngine{
		cfg:      deps.Config,
		resolver: deps.Resolver,
		lists:    deps.Lists,
		table:    deps.Table,
		detection: &ports.DetectionContext{
			Config:    deps.Config,
			Counter:   deps.Counter,
			LinkToken: deps.LinkToken,
			Logger:    deps.Logger,
		},
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}, nil
}

// Resolve exposes the network resolution used by Admit.
func (e *AdmissionEngine) Resolve(r *http.Request) domain.RequestInfo {
	return e.resolver.Resolve(r)
}

// Admit avalia a requisição: rede -> pass-list -> block-list -> filtros da rota.
// Erros de infraestrutura nunca escapam; viram a decisão de fallback configurada.
func (e *AdmissionEngine) Admit(ctx context.Context, route string, r *http.Request) (domain.RequestInfo, domain.Decision) {
	info := e.resolver.Resolve(r)

	if info.IsLocal() && !e.cfg.IPLimit.FilterLinkLocal {
		if !e.cfg.IPLimit.LinkLocalSkipsLists {
			if decision, matched := e.checkLists(info); matched {
				return info, decision
			}
		}
		e.logger.Debug("network is link-local -> not monitored by filters", "network", info.NetworkKey())
		e.metrics.ObserveDecision(metrics.OutcomeAllow, metrics.SourceLinkLocal)
		return info, domain.Allow
	}

	if decision, matched := e.checkLists(info); matched {
		return info, decision
	}

	decision, filter, err := e.table.Evaluate(ctx, route, e.detection, info, r)
	if err != nil {
		return info, e.fallback(info, route, err)
	}
	if decision.Rejected {
		e.logger.Debug("BLOCK", "network", info.NetworkKey(), "route", route, "filter", filter, "reason", decision.Reason)
		e.metrics.ObserveDecision(metrics.OutcomeReject, metrics.SourceFilter)
		return info, decision
	}

	e.metrics.ObserveDecision(metrics.OutcomeAllow, metrics.SourceChain)
	return info, domain.Allow
}

// checkLists applies the pass-list first; an explicit allow wins over a deny.
func (e *AdmissionEngine) checkLists(info domain.RequestInfo) (domain.Decision, bool) {
	if matched, reason := e.lists.PassIP(info.RealIP); matched {
		e.logger.Warn("PASS: matched PASSLIST", "network", info.NetworkKey(), "reason", reason)
		e.metrics.ObserveDecision(metrics.OutcomeAllow, metrics.SourcePassList)
		return domain.Allow, true
	}
	if matched, reason := e.lists.BlockIP(info.RealIP); matched {
		e.logger.Error("BLOCK: matched BLOCKLIST", "network", info.NetworkKey(), "reason", reason)
		e.metrics.ObserveDecision(metrics.OutcomeReject, metrics.SourceBlockList)
		return domain.TooManyRequests("blocklist: " + reason), true
	}
	return domain.Allow, false
}

func (e *AdmissionEngine) fallback(info domain.RequestInfo, route string, err error) domain.Decision {
	if domain.IsStoreUnavailable(err) {
		e.metrics.ObserveStoreError()
	}
	e.metrics.ObserveDecision(e.fallbackOutcome(), metrics.SourceStoreError)

	if e.cfg.FailOpen {
		e.logger.Error("filter evaluation failed, failing open", "network", info.NetworkKey(), "route", route, "error", err)
		return domain.Allow
	}
	e.logger.Error("filter evaluation failed, failing closed", "network", info.NetworkKey(), "route", route, "error", err)
	return domain.TooManyRequests("filter evaluation failed: " + err.Error())
}

func (e *AdmissionEngine) fallbackOutcome() string {
	if e.cfg.FailOpen {
		return metrics.OutcomeAllow
	}
	return metrics.OutcomeReject
}

var errNoCounter = fmt.Errorf("%w: no counter configured", domain.ErrStoreUnavailable)

// noCounter faz filtros com estado caírem no fallback em vez de dar panic.
type noCounter struct{}

func (noCounter) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errNoCounter
}

func (noCounter) Drop(context.Context, string) error {
	return errNoCounter
}

func (noCounter) Block(context.Context, string, time.Duration) error {
	return errNoCounter
}

func (noCounter) IsBlocked(context.Context, string) (bool, error) {
	return false, errNoCounter
}
