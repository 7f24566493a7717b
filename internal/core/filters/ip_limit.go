package filters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

const IPLimitName = "ip_limit"

const (
	burstWindowKey      = "ip_limit.BURST_WINDOW:"
	longWindowKey       = "ip_limit.LONG_WINDOW:"
	suspiciousWindowKey = "ip_limit.SUSPICIOUS_IP_WINDOW:"
)

// IPLimit limita requisições por rede em duas janelas (burst e longa).
// Com link token ativo, redes que nunca buscaram o token são suspeitas e
// recebem limites bem menores; um ping libera a rede de novo.
func IPLimit() ports.Filter {
	return ports.NewFilter(IPLimitName, func(ctx context.Context, dc *ports.DetectionContext, info domain.RequestInfo, _ *http.Request) (domain.Decision, error) {
		cfg := dc.Config.IPLimit
		network := info.NetworkKey()

		if cfg.LinkToken && dc.LinkToken != nil {
			pinged, err := dc.LinkToken.Pinged(ctx, info.Network)
			if err != nil {
				return domain.Allow, err
			}
			if pinged {
				return domain.Allow, dc.Counter.Drop(ctx, suspiciousWindowKey+network)
			}

			count, err := dc.Counter.Increment(ctx, suspiciousWindowKey+network, cfg.Suspicious.Window)
			if err != nil {
				return domain.Allow, err
			}
			if count > int64(cfg.Suspicious.Requests) {
				return domain.TooManyRequests("too many request in SUSPICIOUS_IP_WINDOW (redirect to /)"), nil
			}
			return limitWindows(ctx, dc.Counter, network, cfg.Burst.Window, cfg.BurstMaxSuspicious, cfg.Long.Window, cfg.LongMaxSuspicious)
		}

		return limitWindows(ctx, dc.Counter, network, cfg.Burst.Window, cfg.Burst.Requests, cfg.Long.Window, cfg.Long.Requests)
	})
}

func limitWindows(ctx context.Context, counter ports.Counter, network string, burstWindow time.Duration, burstMax int, longWindow time.Duration, longMax int) (domain.Decision, error) {
	count, err := counter.Increment(ctx, burstWindowKey+network, burstWindow)
	if err != nil {
		return domain.Allow, err
	}
	if count > int64(burstMax) {
		return domain.TooManyRequests(fmt.Sprintf("too many requests in BURST_WINDOW (BURST_MAX: %d)", burstMax)), nil
	}

	count, err = counter.Increment(ctx, longWindowKey+network, longWindow)
	if err != nil {
		return domain.Allow, err
	}
	if count > int64(longMax) {
		return domain.TooManyRequests(fmt.Sprintf("too many requests in LONG_WINDOW (LONG_MAX: %d)", longMax)), nil
	}
	return domain.Allow, nil
}
