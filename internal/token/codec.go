// Package token issues and verifies the signed access and refresh tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chatbot-auth/internal/model"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	minSecretLength = 32
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
)

// Keys is the immutable signing configuration. Access and refresh tokens use
// different secrets so that one kind can never pass as the other.
type Keys struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type AccessClaims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Type  string     `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token value and the instant it stops being valid.
type Issued struct {
	Value     string
	ExpiresAt time.Time
}

type Codec struct {
	keys Keys
	now  func() time.Time
}

func NewCodec(keys Keys) (*Codec, error) {
	if len(keys.AccessSecret) < minSecretLength || len(keys.RefreshSecret) < minSecretLength {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", minSecretLength)
	}
	if string(keys.AccessSecret) == string(keys.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if keys.AccessTTL <= 0 || keys.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if keys.AccessTTL >= keys.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	keys.Issuer = strings.TrimSpace(keys.Issuer)

	// copy the secrets so later mutation by the caller cannot reach the codec
	keys.AccessSecret = append([]byte(nil), keys.AccessSecret...)
	keys.RefreshSecret = append([]byte(nil), keys.RefreshSecret...)

	return &Codec{keys: keys, now: time.Now}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.keys.AccessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.keys.RefreshTTL }

func (c *Codec) IssueAccessToken(identity model.Identity) (Issued, error) {
	now := c.now().UTC()
	expiresAt := now.Add(c.keys.AccessTTL)

	claims := AccessClaims{
		Email:            identity.Email,
		Role:             identity.Role,
		Type:             TypeAccess,
		RegisteredClaims: c.registered(identity.ID, now, expiresAt),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys.AccessSecret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign access token: %w", err)
	}
	return Issued{Value: value, ExpiresAt: expiresAt}, nil
}

func (c *Codec) IssueRefreshToken(identityID string, sessionID string) (Issued, error) {
	if identityID == "" || sessionID == "" {
		return Issued{}, errors.New("refresh token requires identity and session id")
	}

	now := c.now().UTC()
	expiresAt := now.Add(c.keys.RefreshTTL)

	claims := RefreshClaims{
		SessionID:        sessionID,
		Type:             TypeRefresh,
		RegisteredClaims: c.registered(identityID, now, expiresAt),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys.RefreshSecret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Issued{Value: value, ExpiresAt: expiresAt}, nil
}

func (c *Codec) VerifyAccess(value string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(value, claims, c.keys.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) VerifyRefresh(value string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(value, claims, c.keys.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) registered(subject string, now time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    c.keys.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (c *Codec) parse(value string, claims jwt.Claims, secret []byte) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.keys.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.keys.Issuer))
	}

	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, options...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
