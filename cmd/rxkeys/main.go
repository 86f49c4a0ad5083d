// Command rxkeys manages dev KMS key files, prints identity documents, scores
// fraud checks and serves the dev KMS over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
