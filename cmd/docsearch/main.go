// Command docsearch stores uploaded text documents and serves full-text
// search over them.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
