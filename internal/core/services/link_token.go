package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/netip"
	"strconv"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	tokenKind  = "link_token"
	pingKind   = "link_token.ping"
	pingedKind = "link_token.pinged"
)

// LinkTokenChallenge emite, por rede, um token embutido como stylesheet nas
// páginas. Um navegador busca o recurso e gera um ping; um bot simples não.
//
// Estados por (rede, token): não emitido -> emitido(TTL) -> pingado(n)* -> expirado.
// A expiração fica a cargo do TTL do store.
type LinkTokenChallenge struct {
	storage ports.Storage
	keys    KeyBuilder
	cfg     domain.LinkTokenConfig
	logger  *log.Logger
	random  io.Reader
	group   singleflight.Group
}

var _ ports.LinkTokenChallenge = (*LinkTokenChallenge)(nil)

func NewLinkTokenChallenge(storage ports.Storage, keys KeyBuilder, cfg domain.LinkTokenConfig, logger *log.Logger) (*LinkTokenChallenge, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.TokenTTL <= 0 || cfg.PingTTL <= 0 {
		return nil, fmt.Errorf("link token TTLs must be positive")
	}
	if cfg.Length < 8 {
		return nil, fmt.Errorf("link token length must be at least 8, got %d", cfg.Length)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LinkTokenChallenge{
		storage: storage,
		keys:    keys,
		cfg:     cfg,
		logger:  logger,
		random:  rand.Reader,
	}, nil
}

// Issue returns the valid token for network, creating one when none exists.
// Calls within the token TTL return the same token.
//
// Concurrent callers for a network share one store round trip. The shared work
// runs detached from any single caller's cancellation and is bounded by the
// store timeout; each caller still returns early when its own ctx is done.
func (c *LinkTokenChallenge) Issue(ctx context.Context, network netip.Prefix) (string, error) {
	key := c.tokenKey(network)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.issue(shared, network, key)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *LinkTokenChallenge) issue(ctx context.Context, network netip.Prefix, key string) (string, error) {
	token, found, err := c.storage.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if found {
		return token, nil
	}

	token, err = c.newToken()
	if err != nil {
		return "", err
	}
	created, err := c.storage.SetNX(ctx, key, token, c.cfg.TokenTTL)
	if err != nil {
		return "", err
	}
	if created {
		c.logger.Debug("issued link token", "network", network)
		return token, nil
	}

	// another instance created it between Get and SetNX
	existing, found, err := c.storage.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if found {
		return existing, nil
	}
	if err := c.storage.Set(ctx, key, token, c.cfg.TokenTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Ping records that the linked resource was fetched. Tokens that are malformed,
// expired or belong to another network are ignored without an error; only
// store failures are returned.
func (c *LinkTokenChallenge) Ping(ctx context.Context, network netip.Prefix, token string) error {
	if !c.wellFormed(token) {
		c.logger.Debug("ignored ping", "network", network, "error", domain.ErrInvalidToken)
		return nil
	}

	count, ok, err := c.storage.IncrIfEquals(ctx, c.tokenKey(network), token, c.pingKey(network, token), c.cfg.PingTTL)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Debug("ignored ping", "network", network, "error", domain.ErrInvalidToken)
		return nil
	}

	if err := c.storage.Set(ctx, c.keys.Key(pingedKind, network.String()), strconv.FormatInt(count, 10), c.cfg.PingTTL); err != nil {
		return err
	}
	c.logger.Debug("stored ping", "network", network, "pings", count)
	return nil
}

// Pings returns how often the current token of network was pinged.
func (c *LinkTokenChallenge) Pings(ctx context.Context, network netip.Prefix) (int64, error) {
	token, found, err := c.storage.Get(ctx, c.tokenKey(network))
	if err != nil || !found {
		return 0, err
	}
	raw, found, err := c.storage.Get(ctx, c.pingKey(network, token))
	if err != nil || !found {
		return 0, err
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// Pinged reports whether network sent a valid ping within the ping TTL, across
// token rotations.
func (c *LinkTokenChallenge) Pinged(ctx context.Context, network netip.Prefix) (bool, error) {
	_, found, err := c.storage.Get(ctx, c.keys.Key(pingedKind, network.String()))
	if err != nil {
		return false, err
	}
	return found, nil
}

func (c *LinkTokenChallenge) tokenKey(network netip.Prefix) string {
	return c.keys.Key(tokenKind, network.String())
}

func (c *LinkTokenChallenge) pingKey(network netip.Prefix, token string) string {
	return c.keys.Key(pingKind, network.String()+"|"+token)
}

func (c *LinkTokenChallenge) newToken() (string, error) {
	limit := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, c.cfg.Length)
	for i := range buf {
		n, err := rand.Int(c.random, limit)
		if err != nil {
			return "", fmt.Errorf("generate link token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func (c *LinkTokenChallenge) wellFormed(token string) bool {
	if len(token) != c.cfg.Length {
		return false
	}
	for i := 0; i < len(token); i++ {
		ch := token[i]
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}
