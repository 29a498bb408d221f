// Command issuetoken prints a signed bearer token for a user id so the API and
// alertwatch can be exercised locally.
//
// Usage: go run ./cmd/issuetoken -ttl 24h <user_id>
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/linesmerrill/planner-alerts/api"
	"github.com/linesmerrill/planner-alerts/config"
	"github.com/linesmerrill/planner-alerts/logging"
)

func main() {
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: issuetoken [-ttl 24h] <user_id>")
		os.Exit(2)
	}

	log := logging.New()
	defer func() { _ = log.Sync() }()

	_ = godotenv.Load()
	conf := config.New()
	if conf.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	token, err := api.NewAuth(conf.JWTSecret, "").IssueToken(flag.Arg(0), *ttl)
	if err != nil {
		log.Fatalw("failed to issue token", "error", err)
	}
	fmt.Println(token)
}
