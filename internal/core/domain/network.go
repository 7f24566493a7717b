package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// RequestInfo carrega o IP real do cliente e a rede agregada usada como chave.
type RequestInfo struct {
	RealIP  netip.Addr
	Network netip.Prefix
}

// NetworkKey é a forma canônica (comprimida) da rede.
func (i RequestInfo) NetworkKey() string {
	return i.Network.String()
}

// IsLocal reports whether the client is link-local or loopback. The real IP is
// checked as well as the network: masking ::1 to a /48 yields ::, which is
// neither.
func (i RequestInfo) IsLocal() bool {
	return isLocalAddr(i.Network.Addr()) || isLocalAddr(i.RealIP)
}

func isLocalAddr(a netip.Addr) bool {
	return a.IsLoopback() || a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast()
}

// ListEntry é uma faixa de rede de pass-list ou block-list com seu rótulo.
type ListEntry struct {
	Network netip.Prefix
	Label   string
}

func (e ListEntry) String() string {
	if e.Label == "" {
		return e.Network.String()
	}
	return fmt.Sprintf("%s (%s)", e.Network, e.Label)
}

// ParseListEntry aceita um CIDR ou um endereço simples (tratado como /32 ou /128).
func ParseListEntry(network, label string) (ListEntry, error) {
	network = strings.TrimSpace(network)
	if !strings.Contains(network, "/") {
		addr, err := netip.ParseAddr(network)
		if err != nil {
			return ListEntry{}, fmt.Errorf("invalid list entry %q: %w", network, err)
		}
		addr = addr.Unmap()
		return ListEntry{Network: netip.PrefixFrom(addr, addr.BitLen()), Label: label}, nil
	}

	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return ListEntry{}, fmt.Errorf("invalid list entry %q: %w", network, err)
	}
	if prefix.Addr().Is4In6() {
		bits := prefix.Bits() - 96
		if bits < 0 {
			bits = 0
		}
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
	}
	return ListEntry{Network: prefix.Masked(), Label: label}, nil
}
