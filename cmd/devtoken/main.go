// Command devtoken issues a bearer token for a team member using the
// service's signing configuration. Intended for local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spec-kit/install-dispatch/internal/auth"
	"github.com/spec-kit/install-dispatch/internal/config"
	"github.com/spec-kit/install-dispatch/internal/domain"
)

func main() {
	name := flag.String("name", "", "member name")
	team := flag.String("team", "", "member team")
	role := flag.String("role", string(domain.MemberRoleOperator), "OPERATOR, DISPATCHER or ADMIN")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*team) == "" {
		log.Fatal("-name and -team are required")
	}
	memberRole := domain.MemberRole(strings.ToUpper(*role))
	if !memberRole.Valid() {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *ttl)
	token, expiresAt, err := tokens.GenerateToken(domain.Member{Name: *name, Team: *team, Role: memberRole})
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", expiresAt.Format(time.RFC3339))
}
