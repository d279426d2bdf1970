package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/types"
)

var created = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func packageRecord(serial string) types.PackageRecord {
	return types.PackageRecord{
		SerialNumber: serial,
		Author:       "alice",
		Orders: []types.OrderRecord{
			{Action: "create", AttachmentName: "a.txt", AttachmentURL: "https://example.com/a.txt", ExecutionPath: "/Users/a/Desktop"},
			{Action: "rename", AttachmentName: "a.txt", EditingName: "b.txt", ExecutionPath: "/Users/a/Desktop"},
		},
		CreatedAt:  created,
		ValidUntil: created.Add(types.PackageTTL),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func newTestClient(t *testing.T, h http.Handler, now time.Time, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

func TestRetrieve_Live(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /packages/{serial}", func(w http.ResponseWriter, r *http.Request) {
		rec := packageRecord(r.PathValue("serial"))
		writeJSON(t, w, http.StatusOK, map[string]any{"existPackage": rec, "message": "found"})
	})
	c := newTestClient(t, mux, created.Add(10*time.Minute))

	pkg, err := c.Retrieve(t.Context(), "123456")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if pkg.SerialNumber != "123456" || len(pkg.Orders) != 2 {
		t.Errorf("pkg = %+v", pkg)
	}
	if pkg.State != types.PackageRetrieved {
		t.Errorf("State = %q", pkg.State)
	}
	if _, ok := pkg.Orders[1].(*types.Rename); !ok {
		t.Errorf("Orders[1] = %T, want *types.Rename", pkg.Orders[1])
	}
}

func TestRetrieve_ExpiredLocally(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /packages/{serial}", func(w http.ResponseWriter, r *http.Request) {
		rec := packageRecord(r.PathValue("serial"))
		rec.ValidUntil = time.Time{}
		writeJSON(t, w, http.StatusOK, map[string]any{"existPackage": rec})
	})
	c := newTestClient(t, mux, created.Add(31*time.Minute))

	_, err := c.Retrieve(t.Context(), "123456")
	if !errors.Is(err, types.ErrPackageExpired) {
		t.Errorf("Retrieve = %v, want ErrPackageExpired", err)
	}
}

func TestRetrieve_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"not found", http.StatusNotFound, map[string]any{"error": "Package not found"}, types.ErrPackageNotFound},
		{"gone", http.StatusGone, map[string]any{"error": "gone"}, types.ErrPackageExpired},
		{"expired message", http.StatusBadRequest, map[string]any{"error": "Package expired"}, types.ErrPackageExpired},
		{"unauthorized", http.StatusUnauthorized, map[string]any{"error": "Unauthorized"}, types.ErrAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			})
			c := newTestClient(t, h, created)
			_, err := c.Retrieve(t.Context(), "123456")
			if !errors.Is(err, tt.want) {
				t.Errorf("Retrieve = %v, want %v", err, tt.want)
			}
		})
	}
}

// refreshServer answers "Token expired" until the fresh token is presented.
func refreshServer(t *testing.T, refreshes *atomic.Int32, alwaysExpire bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken != "refresh-1" || req.UserID != "user-1" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"error": "bad refresh"})
			return
		}
		refreshes.Add(1)
		writeJSON(t, w, http.StatusOK, map[string]any{"token": "fresh"})
	})
	mux.HandleFunc("POST /packages/new", func(w http.ResponseWriter, r *http.Request) {
		if alwaysExpire || r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{"error": "Token expired"})
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Orders) != 2 {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "bad body"})
			return
		}
		writeJSON(t, w, http.StatusCreated, map[string]any{"serialNumber": "654321"})
	})
	return mux
}

func submittablePackage(t *testing.T) *types.Package {
	t.Helper()
	pkg := types.NewPackage("alice", []types.Order{
		&types.Create{Dest: types.Target{AttachmentName: "a.txt", ExecutionPath: "/d"}, URL: "https://example.com/a.txt"},
		&types.Delete{Dest: types.Target{AttachmentName: "b.txt", ExecutionPath: "/d"}},
	}, created)
	return pkg
}

func TestSubmit_RefreshesOnceOnExpiredToken(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(refreshServer(t, &refreshes, false))
	t.Cleanup(srv.Close)

	collector := metrics.NewCollector("remote", "linux")
	tokens := NewRefreshingTokens(srv.URL, srv.Client(), "user-1", "stale", "refresh-1")
	c, err := New(srv.URL,
		WithTokens(tokens),
		WithCollector(collector),
		WithClock(func() time.Time { return created.Add(time.Minute) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	serial, err := c.Submit(t.Context(), submittablePackage(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if serial != "654321" {
		t.Errorf("serial = %q", serial)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes.Load())
	}
	if got := collector.Snapshot().AuthRefreshes; got != 1 {
		t.Errorf("AuthRefreshes = %d, want 1", got)
	}
}

func TestSubmit_SecondExpiryFails(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(refreshServer(t, &refreshes, true))
	t.Cleanup(srv.Close)

	tokens := NewRefreshingTokens(srv.URL, srv.Client(), "user-1", "stale", "refresh-1")
	c, err := New(srv.URL, WithTokens(tokens), WithClock(func() time.Time { return created }))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Submit(t.Context(), submittablePackage(t))
	if !errors.Is(err, types.ErrAuthExpired) {
		t.Errorf("Submit = %v, want ErrAuthExpired", err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshes = %d, want exactly 1", refreshes.Load())
	}
}

func TestSubmit_StaticTokenCannotRefresh(t *testing.T) {
	var refreshes atomic.Int32
	c := newTestClient(t, refreshServer(t, &refreshes, false), created, WithTokens(StaticToken("stale")))

	_, err := c.Submit(t.Context(), submittablePackage(t))
	if !errors.Is(err, types.ErrAuthExpired) {
		t.Errorf("Submit = %v, want ErrAuthExpired", err)
	}
}

func TestSubmit_RejectsExpiredPackage(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), created.Add(time.Hour))
	_, err := c.Submit(t.Context(), submittablePackage(t))
	if !errors.Is(err, types.ErrPackageExpired) {
		t.Errorf("Submit = %v, want ErrPackageExpired", err)
	}
}

func TestHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "user-1" {
			http.NotFound(w, r)
			return
		}
		older := packageRecord("111111")
		newer := packageRecord("222222")
		newer.CreatedAt = created.Add(40 * time.Minute)
		newer.ValidUntil = newer.CreatedAt.Add(types.PackageTTL)
		broken := packageRecord("333333")
		broken.Orders = []types.OrderRecord{{Action: "explode"}}
		writeJSON(t, w, http.StatusOK, map[string]any{"history": []types.PackageRecord{older, broken, newer}})
	})
	c := newTestClient(t, mux, created.Add(45*time.Minute))

	pkgs, err := c.History(t.Context(), "user-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("len = %d, want 2 (undecodable entry skipped)", len(pkgs))
	}
	if pkgs[0].SerialNumber != "222222" || pkgs[1].SerialNumber != "111111" {
		t.Errorf("order = %s, %s", pkgs[0].SerialNumber, pkgs[1].SerialNumber)
	}
	if pkgs[1].State != types.PackageExpired {
		t.Errorf("older State = %q, want expired", pkgs[1].State)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestExpiresSoon(t *testing.T) {
	now := time.Now()
	if expiresSoon(signedToken(t, now.Add(time.Hour)), now) {
		t.Error("token valid for an hour reported as expiring")
	}
	if !expiresSoon(signedToken(t, now.Add(10*time.Second)), now) {
		t.Error("token inside the skew should be expiring")
	}
	if expiresSoon("opaque-token", now) {
		t.Error("non-JWT tokens never expire locally")
	}
}

func TestRefreshingTokens_ProactiveRefresh(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(refreshServer(t, &refreshes, false))
	t.Cleanup(srv.Close)

	stale := signedToken(t, time.Now().Add(-time.Minute))
	tokens := NewRefreshingTokens(srv.URL, srv.Client(), "user-1", stale, "refresh-1")

	tok, err := tokens.Token(t.Context())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "fresh" || refreshes.Load() != 1 {
		t.Errorf("Token = %q after %d refreshes", tok, refreshes.Load())
	}

	if tok, _ := tokens.Token(t.Context()); tok != "fresh" || refreshes.Load() != 1 {
		t.Errorf("second Token = %q after %d refreshes, want cached", tok, refreshes.Load())
	}
}

func TestRefreshingTokens_MissingRefreshToken(t *testing.T) {
	tokens := NewRefreshingTokens("http://127.0.0.1:0", nil, "user-1", "", "")
	_, err := tokens.Refresh(t.Context())
	if err == nil || !strings.Contains(err.Error(), "refresh") || !errors.Is(err, types.ErrAuthExpired) {
		t.Errorf("Refresh = %v", err)
	}
}
