package domain

import (
	"encoding/json"
	"math"
)

// TokenKind distinguishes short-lived access tokens from single-use refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Wire claim names.
const (
	ClaimSubject      = "sub"
	ClaimKind         = "type"
	ClaimTokenVersion = "token_version"
	ClaimExpiresAt    = "exp"
	ClaimIssuedAt     = "iat"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenClaims is the typed view over a decoded claim mapping.
type TokenClaims struct {
	Subject      string
	Kind         TokenKind
	TokenVersion int64
}

// ParseTokenClaims extracts the identity claims. It reports false when sub or
// token_version is missing or has the wrong shape; kind is optional here.
func ParseTokenClaims(raw map[string]any) (TokenClaims, bool) {
	sub, ok := raw[ClaimSubject].(string)
	if !ok || sub == "" {
		return TokenClaims{}, false
	}
	version, ok := claimInt(raw[ClaimTokenVersion])
	if !ok || version < 0 {
		return TokenClaims{}, false
	}
	kind, _ := raw[ClaimKind].(string)
	return TokenClaims{
		Subject:      sub,
		Kind:         TokenKind(kind),
		TokenVersion: version,
	}, true
}

func claimInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
