package filters

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

// RateLimitPrefix introduz filtros por método: "rate_limit:<método>".
const RateLimitPrefix = "rate_limit:"

// RateLimit conta requisições da rede para method usando a regra
// DetectionConfig.RateLimits[method]. Estourado o limite, a rede fica
// bloqueada por BlockDuration, quando configurado.
func RateLimit(method string) ports.Filter {
	return ports.NewFilter(RateLimitPrefix+method, func(ctx context.Context, dc *ports.DetectionContext, info domain.RequestInfo, _ *http.Request) (domain.Decision, error) {
		rule, ok := dc.Config.RateLimits[method]
		if !ok || !rule.Valid() {
			dc.Logger.Debug("rate limit method has no rule", "method", method)
			return domain.Allow, nil
		}
		key := method + ":" + info.NetworkKey()

		if rule.BlockDuration > 0 {
			blocked, err := dc.Counter.IsBlocked(ctx, key)
			if err != nil {
				return domain.Allow, err
			}
			if blocked {
				return domain.TooManyRequests(fmt.Sprintf("%s: network is blocked", method)), nil
			}
		}

		count, err := dc.Counter.Increment(ctx, key, rule.Window)
		if err != nil {
			return domain.Allow, err
		}
		if count <= int64(rule.Requests) {
			return domain.Allow, nil
		}

		if rule.BlockDuration > 0 {
			if err := dc.Counter.Block(ctx, key, rule.BlockDuration); err != nil {
				return domain.Allow, err
			}
		}
		return domain.TooManyRequests(fmt.Sprintf("%s: %d requests in %s (max %d)", method, count, rule.Window, rule.Requests)), nil
	})
}

// rateLimitMethod returns the method of a "rate_limit:<method>" filter name.
func rateLimitMethod(name string) (string, bool) {
	method, ok := strings.CutPrefix(name, RateLimitPrefix)
	if !ok || method == "" {
		return "", false
	}
	return method, true
}
