package service

import (
	"errors"
	"testing"
	"time"

	"examhall/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerifyToken(t *testing.T) {
	clock := &fakeClock{now: testStart}
	auth := NewAuthService(testSecret, "examhall", clock.Now)

	token, err := auth.IssueToken(Caller{UserID: "u1", Username: "alice", Email: "a@example.com", Role: RoleHost}, time.Hour)
	require.NoError(t, err)

	caller, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", caller.UserID)
	assert.Equal(t, "alice", caller.Username)
	assert.Equal(t, "alice", caller.DisplayName)
	assert.Equal(t, "a@example.com", caller.Email)
	assert.Equal(t, RoleHost, caller.Role)
	assert.True(t, caller.CanHost())
	assert.True(t, caller.CanManage("u1"))
	assert.False(t, caller.CanManage("someone-else"))

	clock.Set(testStart.Add(2 * time.Hour))
	_, err = auth.VerifyToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTokenRejects(t *testing.T) {
	clock := &fakeClock{now: testStart}
	auth := NewAuthService(testSecret, "examhall", clock.Now)

	sign := func(secret string, method jwt.SigningMethod, claims jwt.Claims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	claims := func(mutate func(c *callerClaims)) *callerClaims {
		c := &callerClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "examhall",
				ExpiresAt: jwt.NewNumericDate(testStart.Add(time.Hour)),
			},
			Role: RoleUser,
		}
		mutate(c)
		return c
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: sign("another-secret-another-secret-xx", jwt.SigningMethodHS256, claims(func(c *callerClaims) {}))},
		{name: "wrong algorithm", token: sign(testSecret, jwt.SigningMethodHS512, claims(func(c *callerClaims) {}))},
		{name: "wrong issuer", token: sign(testSecret, jwt.SigningMethodHS256, claims(func(c *callerClaims) { c.Issuer = "elsewhere" }))},
		{name: "no subject", token: sign(testSecret, jwt.SigningMethodHS256, claims(func(c *callerClaims) { c.Subject = "" }))},
		{name: "no expiry", token: sign(testSecret, jwt.SigningMethodHS256, claims(func(c *callerClaims) { c.ExpiresAt = nil }))},
		{name: "unknown role", token: sign(testSecret, jwt.SigningMethodHS256, claims(func(c *callerClaims) { c.Role = "root" }))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.VerifyToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyTokenDefaultsRole(t *testing.T) {
	auth := NewAuthService(testSecret, "", (&fakeClock{now: testStart}).Now)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &callerClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u9", ExpiresAt: jwt.NewNumericDate(testStart.Add(time.Minute))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	caller, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, caller.Role)
	assert.Equal(t, "u9", caller.Username)
	assert.False(t, caller.CanHost())
}

func TestKindOf(t *testing.T) {
	var fields validation.Errors
	fields.Add("name", "name is required")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "service error", err: newError(KindSessionFull, "full"), want: KindSessionFull},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), errNotFound("session")), want: KindNotFound},
		{name: "validation errors", err: fields, want: KindValidation},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	internal := AsError(errors.New("disk on fire"))
	assert.Equal(t, KindInternal, internal.Kind)
	assert.True(t, internal.Retryable())
	assert.NotContains(t, internal.Message, "disk")

	var fields validation.Errors
	fields.Add("maxParticipants", "too low")
	ve := AsError(fields)
	assert.Equal(t, KindValidation, ve.Kind)
	assert.False(t, ve.Retryable())
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "maxParticipants", ve.Fields[0].Field)
}
