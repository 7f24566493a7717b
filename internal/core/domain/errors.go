package domain

import "errors"

var (
	// ErrStoreUnavailable indica falha de comunicação com o store compartilhado.
	ErrStoreUnavailable = errors.New("shared store unavailable")
	// ErrInvalidToken nunca é exposto ao cliente que faz o ping.
	ErrInvalidToken = errors.New("invalid link token")
	// ErrHeaderInconsistency é apenas diagnóstico e nunca bloqueia a requisição.
	ErrHeaderInconsistency = errors.New("inconsistent proxy headers")
	ErrConfigLoad          = errors.New("config load failure")
	ErrUnknownFilter       = errors.New("unknown filter")
)

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
