// Command verifyrace re-runs a resolved race from its public inputs and
// reports whether the recorded finishing order is the one the block hash
// produces.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
