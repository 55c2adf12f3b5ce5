package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/babel/internal/auth"
)

func runHashToken(args []string) int {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	token := fs.String("token", "", "Admin token to hash; a random token is generated when empty")
	cost := fs.Int("cost", auth.DefaultBcryptCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "hash-token does not accept positional arguments")
		return 2
	}

	plain := strings.TrimSpace(*token)
	generated := false
	if plain == "" {
		var err error
		plain, err = auth.GenerateToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
			return 1
		}
		generated = true
	}

	hash, err := auth.HashTokenWithCost(plain, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash token: %v\n", err)
		return 2
	}

	if generated {
		fmt.Fprintf(stdout, "ADMIN_TOKEN=%s\n", plain)
	}
	fmt.Fprintf(stdout, "ADMIN_TOKEN_HASH=%s\n", hash)
	return 0
}
