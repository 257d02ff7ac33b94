package domain

import (
	"context"
	"maps"
	"net"
	"net/netip"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

var ErrDomainNotFound = errors.New("domain not found")

type Lookuper interface {
	LookupIP(ctx context.Context, domain string) (addrs []netip.Addr, err error)
}

// netLookuper asks the system resolver.
type netLookuper struct {
	resolver *net.Resolver
}

var _ Lookuper = (*netLookuper)(nil)

// NewNetLookuper uses resolver, or [net.DefaultResolver] if it is nil.
func NewNetLookuper(resolver *net.Resolver) *netLookuper {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &netLookuper{resolver: resolver}
}

func (l *netLookuper) LookupIP(ctx context.Context, domain string) ([]netip.Addr, error) {
	addrs, err := l.resolver.LookupNetIP(ctx, "ip", domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, errors.Wrapf(ErrDomainNotFound, "%s", domain)
		}
		return nil, errors.Wrapf(err, "looking up %s", domain)
	}
	if len(addrs) == 0 {
		return nil, errors.Wrapf(ErrDomainNotFound, "%s", domain)
	}

	for idx, addr := range addrs {
		// Keeps IPv4 addresses in their 4 byte form.
		addrs[idx] = addr.Unmap()
	}

	return addrs, nil
}

type mapLookuper struct {
	set map[string][]netip.Addr
	mu  sync.RWMutex
}

var _ Lookuper = (*mapLookuper)(nil)

func NewMapLookuper(set map[string][]netip.Addr) *mapLookuper {
	if set == nil {
		set = make(map[string][]netip.Addr)
	}
	return &mapLookuper{set: maps.Clone(set)}
}

func (m *mapLookuper) LookupIP(ctx context.Context, domain string) (addrs []netip.Addr, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs, ok := m.set[domain]
	if !ok {
		return nil, ErrDomainNotFound
	}
	return slices.Clone(addrs), nil
}

func (m *mapLookuper) Set(domain string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[domain] = slices.Clone(addrs)
}

func (m *mapLookuper) Del(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, domain)
}
