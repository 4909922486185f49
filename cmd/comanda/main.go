// Command comanda is the operator CLI: servers, migrations, seed data and
// the lifecycle worker.
package main

import (
	"os"

	"github.com/Additional-Code/comanda/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
