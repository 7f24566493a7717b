// Package domain concentra entidades e estruturas centrais da detecção de bots.
package domain

import "time"

// RateLimitRule define quantas requisições cabem numa janela deslizante.
// BlockDuration opcional mantém a rede bloqueada após estourar o limite.
type RateLimitRule struct {
	Requests      int
	Window        time.Duration
	BlockDuration time.Duration
}

func (r RateLimitRule) Valid() bool {
	return r.Requests > 0 && r.Window > 0
}
