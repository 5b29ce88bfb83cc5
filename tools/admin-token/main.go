package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yhd-salon/salonbook/libs/auth"
)

// admin-token prints an HS256 bearer token for the booking-service admin routes.
// Local development only; production tokens come from the identity provider via JWKS.
func main() {
	var (
		secret = flag.String("secret", getenv("JWT_SECRET", ""), "HS256 signing secret")
		salon  = flag.String("salon-id", getenv("SALON_ID", ""), "salon the token is scoped to")
		sub    = flag.String("sub", getenv("STAFF_ID", "dev-staff"), "subject (staff id)")
		role   = flag.String("role", getenv("ROLE", "owner"), "owner or admin")
		ttl    = flag.Duration("ttl", 12*time.Hour, "token lifetime")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("JWT_SECRET is required")
	}
	if strings.TrimSpace(*salon) == "" {
		fatal("SALON_ID is required")
	}
	if *role != "owner" && *role != "admin" {
		fatal("role must be owner or admin")
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:     *sub,
		SalonID: *salon,
		Role:    *role,
		Iat:     now.Unix(),
		Exp:     now.Add(*ttl).Unix(),
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(token)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
