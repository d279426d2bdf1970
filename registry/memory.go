package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/deliorder/types"
)

// maxSerialAttempts bounds collision retries when assigning a serial.
const maxSerialAttempts = 16

// Memory is an in-process registry. Expired packages stay listed in
// history but are never returned by Retrieve.
type Memory struct {
	mu       sync.RWMutex
	packages map[string]*types.Package
	serials  Serials
	now      Clock
}

// MemoryOption configures a Memory registry.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) { m.now = c }
}

// WithSerialLength sets the serial number length.
func WithSerialLength(n int) MemoryOption {
	return func(m *Memory) { m.serials = NewSerials(n) }
}

// NewMemory creates an empty in-process registry.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		packages: make(map[string]*types.Package),
		serials:  NewSerials(DefaultSerialLength),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit stores a copy of pkg. A pre-set serial is kept if it is well
// formed and unused; otherwise a fresh one is assigned.
func (m *Memory) Submit(_ context.Context, pkg *types.Package) (string, error) {
	if err := CheckSubmittable(pkg, m.now()); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	serial := pkg.SerialNumber
	if serial != "" {
		if err := m.serials.Validate(serial); err != nil {
			return "", err
		}
		if _, taken := m.packages[serial]; taken {
			return "", fmt.Errorf("serial number %s already in use", serial)
		}
	} else {
		var err error
		if serial, err = m.freeSerial(); err != nil {
			return "", err
		}
	}

	stored := clonePackage(pkg)
	stored.SerialNumber = serial
	stored.State = types.PackageSubmitted
	m.packages[serial] = stored
	return serial, nil
}

func (m *Memory) freeSerial() (string, error) {
	for range maxSerialAttempts {
		s, err := m.serials.New()
		if err != nil {
			return "", err
		}
		if _, taken := m.packages[s]; !taken {
			return s, nil
		}
	}
	return "", fmt.Errorf("no free serial number after %d attempts", maxSerialAttempts)
}

// Retrieve returns the package while it is live.
func (m *Memory) Retrieve(_ context.Context, serial string) (*types.Package, error) {
	m.mu.RLock()
	stored, ok := m.packages[serial]
	m.mu.RUnlock()

	if !ok {
		return nil, types.NewRegistryError(types.ErrPackageNotFound, "retrieve", serial, nil)
	}
	if err := CheckLive(stored, m.now(), serial); err != nil {
		return nil, err
	}
	pkg := clonePackage(stored)
	pkg.State = types.PackageRetrieved
	return pkg, nil
}

// History lists author's packages, newest first.
func (m *Memory) History(_ context.Context, author string) ([]*types.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var out []*types.Package
	for _, p := range m.packages {
		if p.Author != author {
			continue
		}
		c := clonePackage(p)
		if c.ExpiredAt(now) {
			c.State = types.PackageExpired
		}
		out = append(out, c)
	}
	SortNewestFirst(out)
	return out, nil
}

func clonePackage(p *types.Package) *types.Package {
	c := *p
	c.Orders = make([]types.Order, len(p.Orders))
	for i, o := range p.Orders {
		c.Orders[i] = types.CloneOrder(o)
	}
	return &c
}
