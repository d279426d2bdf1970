// Package registrytest holds the behavior every registry backend must share.
package registrytest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/deliorder/registry"
	"github.com/pithecene-io/deliorder/types"
)

// Epoch is the creation time of packages built by NewPackage.
var Epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to t.
func NewClock(t time.Time) *Clock { return &Clock{now: t} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// NewPackage builds a two-order package by author created at createdAt.
func NewPackage(author string, createdAt time.Time) *types.Package {
	return types.NewPackage(author, []types.Order{
		&types.Create{
			Dest: types.Target{AttachmentName: "notes.txt", ExecutionPath: "/Users/a/Desktop"},
			URL:  "https://example.com/notes.txt",
		},
		&types.Rename{
			Dest:        types.Target{AttachmentName: "notes.txt", ExecutionPath: "/Users/a/Desktop"},
			EditingName: "notes.md",
		},
	}, createdAt)
}

// Opener creates an empty backend reading time from clock.
type Opener func(t *testing.T, clock registry.Clock) registry.Registry

// Run exercises the registry contract against backends created by open.
func Run(t *testing.T, open Opener) {
	t.Run("SubmitRetrieve", func(t *testing.T) {
		clock := NewClock(Epoch)
		reg := open(t, clock.Now)

		serial, err := reg.Submit(t.Context(), NewPackage("alice", Epoch))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if len(serial) != registry.DefaultSerialLength {
			t.Errorf("serial %q has length %d", serial, len(serial))
		}

		clock.Set(Epoch.Add(29 * time.Minute))
		pkg, err := reg.Retrieve(t.Context(), serial)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if pkg.SerialNumber != serial || pkg.Author != "alice" {
			t.Errorf("pkg = %s by %q", pkg.SerialNumber, pkg.Author)
		}
		if pkg.State != types.PackageRetrieved {
			t.Errorf("State = %q, want retrieved", pkg.State)
		}
		if len(pkg.Orders) != 2 {
			t.Fatalf("len(Orders) = %d, want 2", len(pkg.Orders))
		}
		rename, ok := pkg.Orders[1].(*types.Rename)
		if !ok || rename.EditingName != "notes.md" {
			t.Errorf("Orders[1] = %#v", pkg.Orders[1])
		}
		if !pkg.ValidUntil.Equal(Epoch.Add(types.PackageTTL)) {
			t.Errorf("ValidUntil = %v", pkg.ValidUntil)
		}
	})

	t.Run("ExpiredAtValidUntil", func(t *testing.T) {
		clock := NewClock(Epoch)
		reg := open(t, clock.Now)

		serial, err := reg.Submit(t.Context(), NewPackage("alice", Epoch))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}

		clock.Set(Epoch.Add(types.PackageTTL))
		_, err = reg.Retrieve(t.Context(), serial)
		if !errors.Is(err, types.ErrPackageExpired) {
			t.Fatalf("Retrieve at ValidUntil = %v, want ErrPackageExpired", err)
		}
		var regErr *types.RegistryError
		if !errors.As(err, &regErr) || regErr.Serial != serial {
			t.Errorf("error = %#v, want RegistryError for %s", err, serial)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		reg := open(t, NewClock(Epoch).Now)
		_, err := reg.Retrieve(t.Context(), "000000")
		if !errors.Is(err, types.ErrPackageNotFound) {
			t.Errorf("Retrieve = %v, want ErrPackageNotFound", err)
		}
	})

	t.Run("SubmitRejects", func(t *testing.T) {
		clock := NewClock(Epoch.Add(time.Hour))
		reg := open(t, clock.Now)

		if _, err := reg.Submit(t.Context(), NewPackage("alice", Epoch)); !errors.Is(err, types.ErrPackageExpired) {
			t.Errorf("Submit expired = %v, want ErrPackageExpired", err)
		}

		full := NewPackage("alice", clock.Now())
		for len(full.Orders) <= types.MaxOrders {
			full.Orders = append(full.Orders, full.Orders[0])
		}
		if _, err := reg.Submit(t.Context(), full); err == nil {
			t.Error("Submit with too many orders should fail")
		}
	})

	t.Run("History", func(t *testing.T) {
		clock := NewClock(Epoch)
		reg := open(t, clock.Now)

		older, err := reg.Submit(t.Context(), NewPackage("alice", Epoch))
		if err != nil {
			t.Fatal(err)
		}
		clock.Set(Epoch.Add(40 * time.Minute))
		newer, err := reg.Submit(t.Context(), NewPackage("alice", clock.Now()))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := reg.Submit(t.Context(), NewPackage("bob", clock.Now())); err != nil {
			t.Fatal(err)
		}

		pkgs, err := reg.History(t.Context(), "alice")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(pkgs) != 2 {
			t.Fatalf("len(History) = %d, want 2", len(pkgs))
		}
		if pkgs[0].SerialNumber != newer || pkgs[1].SerialNumber != older {
			t.Errorf("order = %s, %s; want %s, %s", pkgs[0].SerialNumber, pkgs[1].SerialNumber, newer, older)
		}
		if pkgs[1].State != types.PackageExpired {
			t.Errorf("older State = %q, want expired", pkgs[1].State)
		}
		if pkgs[0].State == types.PackageExpired {
			t.Error("newer package should still be live")
		}
	})
}
