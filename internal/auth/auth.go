// Package auth issues and verifies approver session tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/purchase"
)

// Module provides the Authenticator to Fx.
var Module = fx.Provide(New)

var (
	// ErrInvalidCredentials is returned when a username or password does not match.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims is the JWT payload carried by a session token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	Role      purchase.Role
	ExpiresAt time.Time
}

type credential struct {
	role purchase.Role
	hash []byte
}

// Authenticator checks approver passwords and signs HS256 session tokens.
type Authenticator struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	credentials map[string]credential
	now         func() time.Time
}

// New builds an Authenticator from the configured credential table.
// Passwords that already look like bcrypt hashes are used as is.
func New(cfg config.Config) (*Authenticator, error) {
	a := &Authenticator{
		secret:      []byte(cfg.Auth.JWTSecret),
		issuer:      cfg.Auth.Issuer,
		ttl:         cfg.Auth.TokenTTL,
		credentials: make(map[string]credential, 2),
		now:         time.Now,
	}
	if len(a.secret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	if a.ttl <= 0 {
		a.ttl = 12 * time.Hour
	}

	for role, password := range map[purchase.Role]string{
		purchase.RoleDirector: cfg.Auth.DirectorPassword,
		purchase.RoleFinance:  cfg.Auth.FinancePassword,
	} {
		hash, err := toHash(password)
		if err != nil {
			return nil, fmt.Errorf("auth: %s password: %w", role, err)
		}
		a.credentials[string(role)] = credential{role: role, hash: hash}
	}
	return a, nil
}

func toHash(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password is empty")
	}
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		if _, err := bcrypt.Cost([]byte(password)); err != nil {
			return nil, err
		}
		return []byte(password), nil
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// HashPassword returns a bcrypt hash suitable for AUTH_*_PASSWORD settings.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login checks the password for username and signs a session token for its role.
func (a *Authenticator) Login(username, password string) (Session, error) {
	cred, ok := a.credentials[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Role: string(cred.role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(cred.role),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, Role: cred.role, ExpiresAt: expires.Truncate(time.Second)}, nil
}

// Verify parses token and returns the role it was issued for.
func (a *Authenticator) Verify(token string) (purchase.Role, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	role, ok := purchase.ParseRole(claims.Role)
	if !ok {
		return "", ErrInvalidToken
	}
	return role, nil
}
