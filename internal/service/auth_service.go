package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a caller's privilege level
type Role string

const (
	RoleUser  Role = "user"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Caller is the authenticated identity behind a request
type Caller struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
}

// CanHost reports whether the caller may create and manage sessions
func (c *Caller) CanHost() bool {
	return c.Role == RoleHost || c.Role == RoleAdmin
}

// IsAdmin reports whether the caller has the admin role
func (c *Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanManage reports whether the caller may edit or cancel a session owned by hostID
func (c *Caller) CanManage(hostID string) bool {
	return c.IsAdmin() || (c.Role == RoleHost && c.UserID == hostID)
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

type callerClaims struct {
	jwt.RegisteredClaims
	Username    string `json:"username"`
	DisplayName string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
}

// AuthService verifies bearer tokens issued by the identity provider
type AuthService struct {
	secret []byte
	issuer string
	clock  Clock
}

// NewAuthService creates a new auth service for HS256 tokens signed with secret
func NewAuthService(secret, issuer string, clock Clock) *AuthService {
	if clock == nil {
		clock = SystemClock
	}
	return &AuthService{secret: []byte(secret), issuer: issuer, clock: clock}
}

// VerifyToken parses and validates a token into the caller it identifies
func (s *AuthService) VerifyToken(tokenString string) (*Caller, error) {
	claims := &callerClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	role := claims.Role
	switch role {
	case RoleUser, RoleHost, RoleAdmin:
	case "":
		role = RoleUser
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	displayName := claims.DisplayName
	if displayName == "" {
		displayName = username
	}

	return &Caller{
		UserID:      claims.Subject,
		Username:    username,
		DisplayName: displayName,
		Email:       claims.Email,
		Role:        role,
	}, nil
}

// IssueToken signs a token for caller valid for ttl
func (s *AuthService) IssueToken(caller Caller, ttl time.Duration) (string, error) {
	now := s.clock()
	claims := callerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:    caller.Username,
		DisplayName: caller.DisplayName,
		Email:       caller.Email,
		Role:        caller.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
