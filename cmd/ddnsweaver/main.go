// ddnsweaver is a dynamic DNS update service. Clients post a key and secret;
// the server authenticates them, takes the client address from the
// connection and points the client's DNS record at it when it changed.
package main

import (
	"os"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
