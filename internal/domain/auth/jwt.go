// Package auth validates caller identities issued by the external identity
// provider and mints development tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "pestctl/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "pestctl",
		AccessTokenTTL: 15 * time.Minute,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"uid"`
	CompanyID    string `json:"cid"`
	BranchID     string `json:"bid,omitempty"`
	TechnicianID string `json:"tech,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	SessionID    string `json:"sid,omitempty"`
}

// Identity is the caller description embedded in a token.
type Identity struct {
	UserID       string
	CompanyID    string
	BranchID     string
	TechnicianID string
	Email        string
	Role         string
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken signs a token for who. Used by cmd/devtoken and tests;
// production tokens come from the identity provider.
func (s *JWTService) GenerateAccessToken(who Identity, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   who.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:       who.UserID,
		CompanyID:    who.CompanyID,
		BranchID:     who.BranchID,
		TechnicianID: who.TechnicianID,
		Email:        who.Email,
		Role:         who.Role,
		SessionID:    sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates JWT and returns user context.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" || claims.CompanyID == "" {
		return nil, errors.New("token carries no caller identity")
	}

	return &appctx.UserContext{
		UserID:       claims.UserID,
		CompanyID:    claims.CompanyID,
		BranchID:     claims.BranchID,
		TechnicianID: claims.TechnicianID,
		Email:        claims.Email,
		Role:         claims.Role,
		SessionID:    claims.SessionID,
	}, nil
}
