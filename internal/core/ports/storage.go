// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// Storage é o store compartilhado por todas as instâncias do servidor. Cada
// operação é atômica no próprio store; o motor não usa locks entre requisições.
// Falhas de transporte ou timeout devem embrulhar domain.ErrStoreUnavailable.
type Storage interface {
	// IncrWithExpiry incrementa key e define o TTL apenas quando a chave é criada.
	IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	// IncrIfEquals incrementa counterKey somente se guardKey contém expected.
	// O TTL do contador é definido na criação, como em IncrWithExpiry.
	IncrIfEquals(ctx context.Context, guardKey, expected, counterKey string, ttl time.Duration) (int64, bool, error)
	Delete(ctx context.Context, key string) error
}
