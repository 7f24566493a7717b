package services

import (
	"net/netip"
	"slices"

	"github.com/dalf/botdetection/internal/core/domain"
)

// IPListMatcher guarda a pass-list e a block-list. Ambas são imutáveis depois
// da construção e podem ser lidas sem lock.
type IPListMatcher struct {
	pass  []domain.ListEntry
	block []domain.ListEntry
}

func NewIPListMatcher(pass, block []domain.ListEntry) *IPListMatcher {
	return &IPListMatcher{pass: slices.Clone(pass), block: slices.Clone(block)}
}

// PassIP reports whether addr is inside any pass-list network.
func (m *IPListMatcher) PassIP(addr netip.Addr) (bool, string) {
	return Match(addr, m.pass)
}

// BlockIP reports whether addr is inside any block-list network.
func (m *IPListMatcher) BlockIP(addr netip.Addr) (bool, string) {
	return Match(addr, m.block)
}

// Match tests addr against every entry in order and returns the label of the
// first network that contains it. Entries may overlap, so the scan is linear.
func Match(addr netip.Addr, list []domain.ListEntry) (bool, string) {
	if !addr.IsValid() {
		return false, ""
	}
	addr = addr.Unmap()
	for _, entry := range list {
		if entry.Network.Contains(addr) {
			if entry.Label == "" {
				return true, entry.Network.String()
			}
			return true, entry.Label
		}
	}
	return false, ""
}
