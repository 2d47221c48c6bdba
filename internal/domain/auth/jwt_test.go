package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expires, err := svc.GenerateAccessToken(Identity{
		UserID:       "u-7",
		CompanyID:    "0190f5a2-0000-7000-8000-000000000001",
		TechnicianID: "0190f5a2-0000-7000-8000-000000000009",
		Role:         "technician",
	}, "s-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expires, 5*time.Second)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", user.UserID)
	assert.Equal(t, "technician", user.Role)
	assert.Equal(t, "0190f5a2-0000-7000-8000-000000000009", user.TechnicianID)
	assert.Empty(t, user.BranchID)
	assert.Equal(t, "s-1", user.SessionID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	who := Identity{UserID: "u-1", CompanyID: "c-1", Role: "admin"}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"wrong secret", func(t *testing.T) string {
			tok, _, err := NewJWTService(DefaultJWTConfig("other")).GenerateAccessToken(who, "")
			require.NoError(t, err)
			return tok
		}},
		{"wrong issuer", func(t *testing.T) string {
			cfg := DefaultJWTConfig("test-secret")
			cfg.Issuer = "someone-else"
			tok, _, err := NewJWTService(cfg).GenerateAccessToken(who, "")
			require.NoError(t, err)
			return tok
		}},
		{"expired", func(t *testing.T) string {
			cfg := DefaultJWTConfig("test-secret")
			cfg.AccessTokenTTL = -time.Minute
			tok, _, err := NewJWTService(cfg).GenerateAccessToken(who, "")
			require.NoError(t, err)
			return tok
		}},
		{"no company", func(t *testing.T) string {
			tok, _, err := svc.GenerateAccessToken(Identity{UserID: "u-1", Role: "admin"}, "")
			require.NoError(t, err)
			return tok
		}},
		{"none algorithm", func(t *testing.T) string {
			tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1", CompanyID: "c-1"})
			s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}},
		{"garbage", func(*testing.T) string { return "not-a-token" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token(t))
			assert.Error(t, err)
		})
	}
}
