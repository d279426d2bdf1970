package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pithecene-io/deliorder/iox"
	"github.com/pithecene-io/deliorder/types"
)

// expirySkew is how close to its exp claim an access token may get before
// Token refreshes it proactively.
const expirySkew = 30 * time.Second

// TokenSource supplies bearer tokens for registry requests.
type TokenSource interface {
	// Token returns the current access token, or "" for anonymous access.
	Token(ctx context.Context) (string, error)
	// Refresh obtains a new access token.
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that never refreshes.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Refresh always fails with ErrAuthExpired.
func (s StaticToken) Refresh(context.Context) (string, error) {
	return "", fmt.Errorf("%w: no refresh token configured", types.ErrAuthExpired)
}

// RefreshingTokens exchanges a refresh token for access tokens at
// POST /auth/token/refresh.
type RefreshingTokens struct {
	baseURL string
	client  *http.Client
	userID  string
	refresh string
	now     func() time.Time

	mu     sync.Mutex
	access string
}

// NewRefreshingTokens creates a token source seeded with an access token,
// which may be empty.
func NewRefreshingTokens(baseURL string, client *http.Client, userID, access, refresh string) *RefreshingTokens {
	if client == nil {
		client = http.DefaultClient
	}
	return &RefreshingTokens{
		baseURL: baseURL,
		client:  client,
		userID:  userID,
		refresh: refresh,
		access:  access,
		now:     time.Now,
	}
}

// Token returns the access token, refreshing first when it is missing or
// its exp claim is within expirySkew of now.
func (r *RefreshingTokens) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	access := r.access
	r.mu.Unlock()

	if access != "" && !expiresSoon(access, r.now()) {
		return access, nil
	}
	return r.Refresh(ctx)
}

type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Refresh exchanges the refresh token for a new access token.
func (r *RefreshingTokens) Refresh(ctx context.Context) (string, error) {
	if r.refresh == "" || r.userID == "" {
		return "", fmt.Errorf("%w: refresh needs a user id and refresh token", types.ErrAuthExpired)
	}

	body, err := json.Marshal(refreshRequest{UserID: r.userID, RefreshToken: r.refresh})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/auth/token/refresh", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Token == "" {
		return "", fmt.Errorf("%w: refresh returned %s %s", types.ErrAuthExpired, resp.Status, out.Error)
	}

	r.mu.Lock()
	r.access = out.Token
	r.mu.Unlock()
	return out.Token, nil
}

// expiresSoon inspects the exp claim without verifying the signature; the
// registry verifies it. Tokens that are not JWTs or carry no exp never
// expire locally.
func expiresSoon(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Add(expirySkew).Before(exp.Time)
}

// errTokenExpired marks a 401 the registry answered with "Token expired".
var errTokenExpired = errors.New("token expired")
