// Package registry defines the package lifecycle boundary: submitting a
// package under a serial number, retrieving it while it is live, and
// listing an author's history.
//
// Retrieval is retrieve-or-reject. A backend returns a package only while
// now < ValidUntil; otherwise it returns a *types.RegistryError wrapping
// types.ErrPackageExpired or types.ErrPackageNotFound. Backends live in
// subpackages (remote, redis, sqlite); Memory is the in-process backend.
package registry

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/pithecene-io/deliorder/types"
)

// Retriever fetches a live package by serial number. It is the only
// registry capability the engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, serial string) (*types.Package, error)
}

// Registry is the full lifecycle surface used by the CLI.
type Registry interface {
	Retriever
	// Submit stores pkg and returns its assigned serial number.
	Submit(ctx context.Context, pkg *types.Package) (string, error)
	// History returns author's packages, newest first, including expired ones.
	History(ctx context.Context, author string) ([]*types.Package, error)
}

// Clock returns the current time. Backends take one so tests can move time.
type Clock func() time.Time

// CheckLive returns a RegistryError when pkg is no longer live at now.
func CheckLive(pkg *types.Package, now time.Time, serial string) error {
	if pkg.ExpiredAt(now) {
		return types.NewRegistryError(types.ErrPackageExpired, "retrieve", serial, nil)
	}
	return nil
}

// CheckSubmittable validates a package about to be stored.
func CheckSubmittable(pkg *types.Package, now time.Time) error {
	if pkg == nil {
		return errors.New("submit: nil package")
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	if pkg.ExpiredAt(now) {
		return types.NewRegistryError(types.ErrPackageExpired, "submit", pkg.SerialNumber, nil)
	}
	return nil
}

// SortNewestFirst orders packages by creation time, newest first.
// Ties break on serial number so the order is stable across backends.
func SortNewestFirst(pkgs []*types.Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		if !pkgs[i].CreatedAt.Equal(pkgs[j].CreatedAt) {
			return pkgs[i].CreatedAt.After(pkgs[j].CreatedAt)
		}
		return pkgs[i].SerialNumber > pkgs[j].SerialNumber
	})
}
