// Command token issues a signed caller token for the ledger API
package main

import (
	"flag"
	"fmt"
	"log"

	"pos-ledger/config"
	"pos-ledger/internal/auth"
)

func main() {
	subject := flag.String("sub", "", "caller subject, for example a cashier login")
	role := flag.String("role", string(auth.RoleCashier), "caller role: admin or cashier")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-sub is required")
	}

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	token, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(*subject, auth.Role(*role))
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
