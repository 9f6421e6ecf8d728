package grpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simaogato/topvoter-backend/internal/domain"
)

// AccountTokenHeader carries a signed token whose subject is the calling account
const AccountTokenHeader = "x-account-token"

const accountTokenIssuer = "topvoter"

// MinAccountTokenSecretLen is the shortest accepted signing secret, in bytes
const MinAccountTokenSecretLen = 16

// AccountTokens issues and verifies HS256 account tokens
type AccountTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAccountTokens creates an AccountTokens signing with secret
// Issued tokens expire after ttl
func NewAccountTokens(secret string, ttl time.Duration) (*AccountTokens, error) {
	if len(secret) < MinAccountTokenSecretLen {
		return nil, fmt.Errorf("account token secret must be at least %d bytes", MinAccountTokenSecretLen)
	}
	if ttl <= 0 {
		return nil, errors.New("account token ttl must be positive")
	}
	return &AccountTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token naming account
func (a *AccountTokens) Issue(account domain.Account) (string, error) {
	if account.IsZero() {
		return "", domain.ErrInvalidAccount
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    accountTokenIssuer,
		Subject:   account.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign account token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its account
func (a *AccountTokens) Verify(token string) (domain.Account, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(accountTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}

	account, err := domain.ParseAccount(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("invalid token subject: %w", err)
	}
	return account, nil
}
