package services

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/logging"
)

// UnknownAddr é usado quando nenhuma fonte fornece um endereço válido.
var UnknownAddr = netip.IPv4Unspecified()

// NetworkResolver deriva o IP real do cliente a partir dos headers de proxy e
// o agrega na rede usada como chave por todos os outros componentes.
type NetworkResolver struct {
	cfg    domain.RealIPConfig
	logger *log.Logger
	once   *logging.OnceLogger
}

func NewNetworkResolver(cfg domain.RealIPConfig, logger *log.Logger, once *logging.OnceLogger) *NetworkResolver {
	if cfg.XFor < 1 {
		cfg.XFor = 1
	}
	cfg.IPv4Prefix = clampPrefix(cfg.IPv4Prefix, 32)
	cfg.IPv6Prefix = clampPrefix(cfg.IPv6Prefix, 128)
	if logger == nil {
		logger = log.Default()
	}
	return &NetworkResolver{cfg: cfg, logger: logger, once: once}
}

func clampPrefix(bits, maxBits int) int {
	if bits <= 0 || bits > maxBits {
		return maxBits
	}
	return bits
}

// Resolve returns the client address and its aggregated network.
func (n *NetworkResolver) Resolve(r *http.Request) domain.RequestInfo {
	addr := n.RealIP(r)
	return domain.RequestInfo{RealIP: addr, Network: n.Network(addr)}
}

// Network widens addr to the configured IPv4 or IPv6 prefix.
func (n *NetworkResolver) Network(addr netip.Addr) netip.Prefix {
	addr = addr.Unmap()
	bits := n.cfg.IPv4Prefix
	if addr.Is6() {
		bits = n.cfg.IPv6Prefix
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.PrefixFrom(UnknownAddr, 32)
	}
	return prefix
}

// RealIP picks the client address, in order: the XFor-th entry from the end of
// X-Forwarded-For, X-Real-IP, the peer address, UnknownAddr. Disagreement
// between the sources is logged and never blocks.
func (n *NetworkResolver) RealIP(r *http.Request) netip.Addr {
	forwardedFor := strings.TrimSpace(strings.Join(r.Header.Values("X-Forwarded-For"), ","))
	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	remoteAddr := remoteHost(r.RemoteAddr)

	var fromForwarded string
	if forwardedFor == "" {
		n.once.Error("X-Forwarded-For header is not set!")
	} else {
		entries := splitList(forwardedFor)
		switch {
		case len(entries) == 0:
		case len(entries) >= n.cfg.XFor:
			fromForwarded = entries[len(entries)-n.cfg.XFor]
		default:
			fromForwarded = entries[0]
			n.logger.Warn("X-Forwarded-For has fewer entries than trusted proxies",
				"entries", len(entries), "x_for", n.cfg.XFor, "error", domain.ErrHeaderInconsistency)
		}
	}

	if realIP == "" {
		n.once.Error("X-Real-IP header is not set!")
	}

	if fromForwarded != "" && realIP != "" && fromForwarded != realIP {
		n.logger.Warn("IP from X-Real-IP is not equal to IP from X-Forwarded-For",
			"x_real_ip", realIP, "x_forwarded_for", fromForwarded, "error", domain.ErrHeaderInconsistency)
	}
	if fromForwarded != "" && remoteAddr != "" && fromForwarded != remoteAddr {
		n.logger.Warn("IP from peer address is not equal to IP from X-Forwarded-For",
			"remote_addr", remoteAddr, "x_forwarded_for", fromForwarded, "error", domain.ErrHeaderInconsistency)
	}
	if realIP != "" && remoteAddr != "" && realIP != remoteAddr {
		n.logger.Warn("IP from peer address is not equal to IP from X-Real-IP",
			"remote_addr", remoteAddr, "x_real_ip", realIP, "error", domain.ErrHeaderInconsistency)
	}

	for _, candidate := range []string{fromForwarded, realIP, remoteAddr} {
		if candidate == "" {
			continue
		}
		addr, ok := parseAddr(candidate)
		if !ok {
			n.logger.Warn("ignoring unparsable client address", "value", candidate)
			continue
		}
		return addr
	}
	return UnknownAddr
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}

// parseAddr accepts a bare address, an address with port, or a bracketed IPv6.
func parseAddr(value string) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}
