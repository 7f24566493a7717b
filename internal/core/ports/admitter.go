package ports

import (
	"context"
	"net/http"

	"github.com/dalf/botdetection/internal/core/domain"
)

type Admitter interface {
	Admit(ctx context.Context, route string, r *http.Request) (domain.RequestInfo, domain.Decision)
}
