// cmd/admintoken/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"libraryinfo/internal/inventory"
)

// admintoken prints the ADMIN_TOKEN_HASH and ADMIN_TOKEN_SALT values for a
// bearer token.
func main() {
	token := flag.String("token", "", "admin bearer token to hash")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "usage: admintoken -token <secret>")
		os.Exit(2)
	}

	hash, salt, err := inventory.HashAdminToken(*token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("ADMIN_TOKEN_HASH=%s\n", hash)
	fmt.Printf("ADMIN_TOKEN_SALT=%s\n", salt)
}
