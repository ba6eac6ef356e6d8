// Package main prints the bcrypt hash the catalog would store for a password.
// It is used to seed or repair users.password_hash by hand without running the
// server. The password is read from the first argument or, if absent, from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/resource-catalog/resource-catalog/internal/auth"
)

func main() {
	cost := flag.Int("cost", 0, "bcrypt cost (0 uses the default)")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "usage: hash [-cost N] <password>  (or pipe the password on stdin)")
			os.Exit(2)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.NewCredentialVerifier(*cost).Hash(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
