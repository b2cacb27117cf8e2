// Command ignite-cli is a manual operator tool for a running ignite
// store: get/set/delete/cas/incr/decr/expire against a local datapool,
// plus a stats command for a quick health check.
package main

import (
	"fmt"
	"os"

	"github.com/ignitedb/ignite/cmd/ignite-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
