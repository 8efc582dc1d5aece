// Package main provides the inframe CLI: record screen context, query
// it, serve it to AI assistants over MCP, and inspect the cached
// snapshot.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
