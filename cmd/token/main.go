// Command token prints an operator JWT for the read and live feed routes.
package main

import (
	"flag"
	"fmt"
	"os"

	"prediction-ledger-api/config"
	"prediction-ledger-api/services"
)

func main() {
	operator := flag.String("operator", "", "operator name stored in the token subject")
	role := flag.String("role", "operator", "role claim")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.JWT.Enabled() {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}
	if *operator == "" {
		fmt.Fprintln(os.Stderr, "-operator is required")
		os.Exit(2)
	}

	token, err := services.NewAuthService(cfg.JWT).GenerateToken(*operator, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
