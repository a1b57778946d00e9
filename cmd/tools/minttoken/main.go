package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/auth"
)

// minttoken mints an admin access token for the API using the same secret the
// server validates with. Intended for operators calling /v1/admin endpoints
// from scripts or curl.
func main() {
	subject := flag.String("subject", "ops", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET"))
	if secret == "" {
		fmt.Fprintln(os.Stderr, "minttoken: ADMIN_JWT_SECRET is required")
		os.Exit(2)
	}
	issuer := os.Getenv("ADMIN_JWT_ISSUER")
	if strings.TrimSpace(issuer) == "" {
		issuer = "gesfaturacao-sync"
	}
	audience := os.Getenv("ADMIN_JWT_AUDIENCE")

	svc := auth.NewService([]byte(secret), issuer, audience, *ttl)
	token, err := svc.IssueToken(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minttoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
