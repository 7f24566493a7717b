package domain

import "net/http"

const TooManyRequestsMessage = "Too Many Requests"

// Decision é o resultado de um filtro ou da admissão como um todo.
// Reason vai apenas para o log do operador e nunca para o cliente.
type Decision struct {
	Rejected   bool
	StatusCode int
	Message    string
	Reason     string
}

// Allow is the zero Decision: continue with the next filter.
var Allow = Decision{}

func Reject(statusCode int, message, reason string) Decision {
	return Decision{Rejected: true, StatusCode: statusCode, Message: message, Reason: reason}
}

// TooManyRequests is the uniform rejection every heuristic returns.
func TooManyRequests(reason string) Decision {
	return Reject(http.StatusTooManyRequests, TooManyRequestsMessage, reason)
}
