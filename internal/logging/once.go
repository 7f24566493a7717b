package logging

import (
	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultOnceCapacity = 1024

// OnceLogger registra cada mensagem distinta uma única vez durante a vida do
// processo. O conjunto de mensagens vistas é limitado; uma chave despejada pelo
// LRU pode voltar a ser registrada.
type OnceLogger struct {
	logger *log.Logger
	seen   *lru.Cache[string, struct{}]
}

func NewOnceLogger(logger *log.Logger, capacity int) (*OnceLogger, error) {
	if capacity <= 0 {
		capacity = DefaultOnceCapacity
	}
	seen, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &OnceLogger{logger: logger, seen: seen}, nil
}

// Error logs msg at error level unless it was already logged. It reports
// whether the message was written.
func (o *OnceLogger) Error(msg string, keyvals ...any) bool {
	if o == nil {
		return false
	}
	if seen, _ := o.seen.ContainsOrAdd(msg, struct{}{}); seen {
		return false
	}
	o.logger.Error(msg, keyvals...)
	return true
}
