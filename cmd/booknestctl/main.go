// Command booknestctl runs operator tasks against a BookNest deployment:
// bootstrapping API keys, minting bearer tokens and draining the drift
// stream by hand.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
