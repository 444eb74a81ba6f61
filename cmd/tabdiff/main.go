// Command tabdiff is the CLI front end over pkg/workspace, pkg/writer,
// pkg/store, pkg/chain, pkg/diff and pkg/rollback: it is plumbing only,
// the same "thin main, one top-level object" shape as the teacher's
// cmd/service/main.go.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatCLIError(err))
		os.Exit(1)
	}
}
