// mktoken issues a development JWT compatible with the server's verifier.
// Production tokens come from the campus identity provider; this tool exists
// so local clients can authenticate without it.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/campuslink/campuslink/internal/auth"
)

func main() {
	secret := flag.String("secret", "dev-secret", "HS256 signing secret (must match JWT_SECRET)")
	issuer := flag.String("issuer", "campuslink", "token issuer (must match JWT_ISSUER)")
	subject := flag.String("sub", "", "subject (identity provider user ID)")
	name := flag.String("name", "", "display name claim")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: mktoken -sub <subject> [-name <display name>] [-email <email>]")
		os.Exit(1)
	}

	token, err := auth.IssueToken(*secret, *issuer, *subject, *name, *email, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
