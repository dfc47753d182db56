package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/sessionauth/internal/domain"
)

// JWTConfig is the process-wide signing configuration. It is read once at
// startup and never mutated afterwards.
type JWTConfig struct {
	// Algorithm is one of HS256, HS384, HS512 or RS256.
	Algorithm     string
	Secret        []byte
	PrivateKeyPEM string
	PublicKeyPEM  string
	KeyID         string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Clock overrides time.Now for expiry computation and validation.
	Clock func() time.Time
}

// JWTCodec signs and verifies compact JWS tokens.
// Keys are held at adapter level so the application layer stays crypto-library agnostic.
type JWTCodec struct {
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	publicKey  *rsa.PublicKey
	kid        string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFn      func() time.Time
	parser     *jwt.Parser
}

// NewJWTCodec builds a codec from configured key material.
func NewJWTCodec(cfg JWTConfig) (*JWTCodec, error) {
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	c, err := newCodec(cfg, method)
	if err != nil {
		return nil, err
	}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("jwt secret is required for HMAC algorithms")
		}
		secret := append([]byte(nil), cfg.Secret...)
		c.signKey, c.verifyKey = secret, secret
	case *jwt.SigningMethodRSA:
		if cfg.PrivateKeyPEM == "" || cfg.PublicKeyPEM == "" {
			return nil, errors.New("jwt private/public keys are required for RSA algorithms")
		}
		priv, err := parseRSAPrivate(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		pub, err := parseRSAPublic(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		c.signKey, c.verifyKey, c.publicKey = priv, pub, pub
	}
	return c, nil
}

// NewEphemeralJWTCodec creates in-memory key material for local/dev use.
// Every restart invalidates all outstanding tokens.
func NewEphemeralJWTCodec(cfg JWTConfig) (*JWTCodec, error) {
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	c, err := newCodec(cfg, method)
	if err != nil {
		return nil, err
	}
	if c.kid == "" {
		c.kid = "ephemeral-key-1"
	}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		secret := make([]byte, 64)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		c.signKey, c.verifyKey = secret, secret
	case *jwt.SigningMethodRSA:
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		c.signKey, c.verifyKey, c.publicKey = privateKey, &privateKey.PublicKey, &privateKey.PublicKey
	}
	return c, nil
}

func newCodec(cfg JWTConfig, method jwt.SigningMethod) (*JWTCodec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("access and refresh token ttl must be positive")
	}
	nowFn := cfg.Clock
	if nowFn == nil {
		nowFn = time.Now
	}
	return &JWTCodec{
		method:     method,
		kid:        cfg.KeyID,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		nowFn:      nowFn,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(nowFn),
			jwt.WithJSONNumber(),
		),
	}, nil
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	case "RS256":
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
}

// Algorithm reports the configured signing algorithm.
func (c *JWTCodec) Algorithm() string { return c.method.Alg() }

// Encode signs claims with an absolute expiry of now+ttl. Caller-supplied
// exp/iat values are overwritten.
func (c *JWTCodec) Encode(claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := c.nowFn()
	mc := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		mc[k] = v
	}
	mc[domain.ClaimIssuedAt] = now.Unix()
	mc[domain.ClaimExpiresAt] = now.Add(ttl).Unix()

	token := jwt.NewWithClaims(c.method, mc)
	if c.kid != "" {
		token.Header["kid"] = c.kid
	}
	return token.SignedString(c.signKey)
}

// Decode returns the claim mapping of a correctly signed, unexpired token.
// Every failure collapses to domain.ErrInvalidToken; the reason is only logged.
func (c *JWTCodec) Decode(raw string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		slog.Default().Debug("token rejected",
			"module", "security",
			"layer", "adapter",
			"operation", "decode_token",
			"outcome", "failure",
			"reason", decodeFailureReason(err),
			"error", err,
		)
		return nil, domain.ErrInvalidToken
	}
	return map[string]any(claims), nil
}

// IssuePair mints an access and a refresh token for the same identity and version.
func (c *JWTCodec) IssuePair(subject string, tokenVersion int64) (domain.TokenPair, error) {
	access, err := c.Encode(map[string]any{
		domain.ClaimSubject:      subject,
		domain.ClaimKind:         string(domain.TokenKindAccess),
		domain.ClaimTokenVersion: tokenVersion,
	}, c.accessTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := c.Encode(map[string]any{
		domain.ClaimSubject:      subject,
		domain.ClaimKind:         string(domain.TokenKindRefresh),
		domain.ClaimTokenVersion: tokenVersion,
	}, c.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// PublicJWKs lists verification keys. Symmetric setups publish nothing.
func (c *JWTCodec) PublicJWKs() ([]map[string]any, error) {
	if c.publicKey == nil {
		return []map[string]any{}, nil
	}
	e := big.NewInt(int64(c.publicKey.E)).Bytes()
	n := c.publicKey.N.Bytes()

	return []map[string]any{
		{
			"kid": c.kid,
			"kty": "RSA",
			"alg": c.method.Alg(),
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(n),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		},
	}, nil
}

func decodeFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
