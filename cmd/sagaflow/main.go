// Command sagaflow hosts the reference CRUD vertical that exercises the
// saga orchestrator end to end: a user-creation workflow combining a
// persistence step, an account-provisioning HTTP call, and an audit event.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
