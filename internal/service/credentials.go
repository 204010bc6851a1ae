package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatbot-auth/internal/model"
	"chatbot-auth/internal/password"
)

// CredentialVerifier checks an email and password against the user store.
// Unknown emails still pay for one hash comparison so both failures look alike.
type CredentialVerifier struct {
	users     UserStore
	hasher    *password.Hasher
	dummyHash string
}

func NewCredentialVerifier(users UserStore, hasher *password.Hasher) (*CredentialVerifier, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare credential verifier: %w", err)
	}
	return &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummy}, nil
}

func (v *CredentialVerifier) VerifyCredentials(ctx context.Context, identifier string, secret string) (model.Identity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		_ = v.hasher.Verify(secret, v.dummyHash)
		return model.Identity{}, model.ErrInvalidCredentials
	}

	identity, err := v.users.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			_ = v.hasher.Verify(secret, v.dummyHash)
			return model.Identity{}, model.ErrInvalidCredentials
		}
		return model.Identity{}, unavailable(err)
	}

	if err := v.hasher.Verify(secret, identity.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return model.Identity{}, model.ErrInvalidCredentials
		}
		return model.Identity{}, err
	}
	return identity, nil
}
