// Package main mints development access tokens for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pestctl/internal/config"
	"pestctl/internal/core/id"
	"pestctl/internal/core/security"
	"pestctl/internal/domain/auth"
)

func main() {
	var (
		who auth.Identity
		ttl time.Duration
	)
	flag.StringVar(&who.UserID, "user", "dev-user", "user id")
	flag.StringVar(&who.CompanyID, "company", "01890000-0000-7000-8000-000000000001", "company id")
	flag.StringVar(&who.BranchID, "branch", "", "branch id (branch managers)")
	flag.StringVar(&who.TechnicianID, "technician", "", "technician id")
	flag.StringVar(&who.Email, "email", "", "email")
	flag.StringVar(&who.Role, "role", string(security.RoleAdmin), "admin | branch_manager | technician")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if cfg.IsProduction() {
		fail(fmt.Errorf("refusing to mint tokens in production"))
	}

	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	jwtConfig.AccessTokenTTL = ttl

	token, expires, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(who, id.New().String())
	if err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "expires at %s\n", expires.Format(time.RFC3339))
	fmt.Println(token)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
	os.Exit(1)
}
