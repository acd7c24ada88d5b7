package auth

import (
	"golang.org/x/oauth2"
)

// TokenSourceGate adapts an oauth2.TokenSource. The user is authenticated
// while the source yields a valid token; refreshes happen inside the source.
type TokenSourceGate struct {
	src oauth2.TokenSource
}

// NewTokenSourceGate wraps src with oauth2.ReuseTokenSource so repeated
// calls do not hit the token endpoint.
func NewTokenSourceGate(src oauth2.TokenSource) *TokenSourceGate {
	return &TokenSourceGate{src: oauth2.ReuseTokenSource(nil, src)}
}

// IsAuthenticated implements Gate.
func (g *TokenSourceGate) IsAuthenticated() bool {
	_, ok := g.Token()
	return ok
}

// Token implements Gate.
func (g *TokenSourceGate) Token() (string, bool) {
	if g == nil || g.src == nil {
		return "", false
	}
	tok, err := g.src.Token()
	if err != nil || !tok.Valid() {
		return "", false
	}
	return tok.AccessToken, true
}
