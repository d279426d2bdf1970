package types

import (
	"fmt"
	"time"
)

// PackageTTL is the fixed lifetime of a submitted package.
const PackageTTL = 30 * time.Minute

// MaxOrders is the closed upper bound on orders per package.
const MaxOrders = 5

// PackageState is the lifecycle position of a package.
type PackageState string

// Package lifecycle states.
const (
	PackageDraft     PackageState = "draft"
	PackageSubmitted PackageState = "submitted"
	PackageRetrieved PackageState = "retrieved"
	PackageExecuted  PackageState = "executed"
	PackageExpired   PackageState = "expired"
)

// Package is an ordered, bounded set of validated orders submitted as a unit.
type Package struct {
	SerialNumber string
	Author       string
	Orders       []Order
	CreatedAt    time.Time
	ValidUntil   time.Time
	State        PackageState
}

// NewPackage stamps a sealed order list with its creation time and expiry.
func NewPackage(author string, orders []Order, createdAt time.Time) *Package {
	return &Package{
		Author:     author,
		Orders:     orders,
		CreatedAt:  createdAt.UTC(),
		ValidUntil: createdAt.UTC().Add(PackageTTL),
		State:      PackageDraft,
	}
}

// Validate checks the structural bounds every package must satisfy.
func (p *Package) Validate() error {
	if len(p.Orders) == 0 {
		return fmt.Errorf("package has no orders")
	}
	if len(p.Orders) > MaxOrders {
		return fmt.Errorf("package has %d orders, maximum is %d", len(p.Orders), MaxOrders)
	}
	if !p.ValidUntil.Equal(p.CreatedAt.Add(PackageTTL)) {
		return fmt.Errorf("package validity window must be %s", PackageTTL)
	}
	return nil
}

// ExpiredAt reports whether the package is no longer live at now.
func (p *Package) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ValidUntil)
}

// PackageRecord is the wire/storage form of a package.
type PackageRecord struct {
	SerialNumber string        `json:"serialNumber" msgpack:"serialNumber" yaml:"serial_number"`
	Author       string        `json:"author,omitempty" msgpack:"author,omitempty" yaml:"author,omitempty"`
	Orders       []OrderRecord `json:"orders" msgpack:"orders" yaml:"orders"`
	CreatedAt    time.Time     `json:"createdAt" msgpack:"createdAt" yaml:"created_at"`
	ValidUntil   time.Time     `json:"validUntil" msgpack:"validUntil" yaml:"valid_until"`
}

// ToPackageRecord converts a package to its wire form.
func ToPackageRecord(p *Package) PackageRecord {
	orders := make([]OrderRecord, 0, len(p.Orders))
	for _, o := range p.Orders {
		orders = append(orders, ToRecord(o))
	}
	return PackageRecord{
		SerialNumber: p.SerialNumber,
		Author:       p.Author,
		Orders:       orders,
		CreatedAt:    p.CreatedAt,
		ValidUntil:   p.ValidUntil,
	}
}
