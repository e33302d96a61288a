package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"referral-ledger-backend/internal/domain"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeService TokenType = "service"
)

const (
	issuer   = "referral-ledger"
	audience = "referral-api"
)

// AccountClaims identifies the caller of the API. Accounts are owned by the
// identity service; the token carries what authorization needs.
type AccountClaims struct {
	AccountID string             `json:"account_id"`
	Email     string             `json:"email,omitempty"`
	Role      domain.AccountRole `json:"role"`
	Type      TokenType          `json:"type"`
	jwt.RegisteredClaims
}

func (c *AccountClaims) IsAdmin() bool {
	return c.Role == domain.AccountRoleAdmin
}

type TokenManager interface {
	GenerateAccessToken(accountID, email string, role domain.AccountRole) (string, error)
	// GenerateServiceToken mints a token for internal callers such as the
	// identity service posting trainer-verified events.
	GenerateServiceToken(name string) (string, error)
	ValidateToken(tokenString string) (*AccountClaims, error)
}

type tokenManager struct {
	secret []byte
	expiry time.Duration
	clock  clockwork.Clock
}

func NewTokenManager(secret string, expiry time.Duration, clock clockwork.Clock) TokenManager {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &tokenManager{
		secret: []byte(secret),
		expiry: expiry,
		clock:  clock,
	}
}

func (m *tokenManager) sign(claims AccountClaims, ttl time.Duration) (string, error) {
	now := m.clock.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.AccountID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) GenerateAccessToken(accountID, email string, role domain.AccountRole) (string, error) {
	return m.sign(AccountClaims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		Type:      TokenTypeAccess,
	}, m.expiry)
}

func (m *tokenManager) GenerateServiceToken(name string) (string, error) {
	return m.sign(AccountClaims{
		AccountID: "service:" + name,
		Role:      domain.AccountRoleAdmin,
		Type:      TokenTypeService,
	}, 24*time.Hour)
}

func (m *tokenManager) ValidateToken(tokenString string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AccountID == "" {
		claims.AccountID = claims.Subject
	}
	if claims.AccountID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
