package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// KeyBuilder monta as chaves do store compartilhado. O nome lógico (método +
// rede, rede + token...) passa por HMAC com o segredo, então redes de clientes
// nunca aparecem em texto claro no store.
type KeyBuilder struct {
	prefix string
	secret []byte
}

func NewKeyBuilder(prefix, secret string) KeyBuilder {
	return KeyBuilder{prefix: prefix, secret: []byte(secret)}
}

func (k KeyBuilder) Hash(name string) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(name))
	return hex.EncodeToString(mac.Sum(nil))
}

// Key returns "<prefix><kind>[<hmac(name)>]".
func (k KeyBuilder) Key(kind, name string) string {
	return k.prefix + kind + "[" + k.Hash(name) + "]"
}
