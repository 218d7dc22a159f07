package github

import (
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authSource produces the Authorization header value for a request.
type authSource interface {
	authorization() (string, error)
}

func newAuthSource(opts Options) (authSource, error) {
	if opts.AppID != "" && opts.AppPrivateKey != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(opts.AppPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse app private key: %w", err)
		}
		return &appAuth{appID: opts.AppID, key: key, now: time.Now}, nil
	}
	return staticToken(opts.Token), nil
}

// staticToken authenticates with a personal access token. An empty
// token means anonymous access.
type staticToken string

func (t staticToken) authorization() (string, error) {
	if t == "" {
		return "", nil
	}
	return "token " + string(t), nil
}

// appAuth authenticates as a GitHub App by minting short-lived RS256
// JWTs. Tokens are reused until shortly before expiry.
type appAuth struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time

	mu      sync.Mutex
	signed  string
	expires time.Time
}

func (a *appAuth) authorization() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.signed != "" && now.Before(a.expires.Add(-time.Minute)) {
		return "Bearer " + a.signed, nil
	}

	expires := now.Add(9 * time.Minute)
	claims := jwt.RegisteredClaims{
		Issuer: a.appID,
		// Backdated to tolerate clock drift against GitHub's servers.
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign app token: %w", err)
	}
	a.signed = signed
	a.expires = expires
	return "Bearer " + signed, nil
}
