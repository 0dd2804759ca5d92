// Command api runs the delivery marketplace. With no argument, or "serve",
// it starts the HTTP API and the payout and reconciliation workers.
// "migrate" applies the schema migrations and exits.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/delivery-marketplace/internal/app"
)

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "serve":
		err = app.Run()
	case "migrate":
		err = app.Migrate()
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [serve|migrate]\n", os.Args[0])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketplace %s: %v\n", command, err)
		os.Exit(1)
	}
}
