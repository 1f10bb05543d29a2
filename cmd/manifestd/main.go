// Command manifestd is a small demonstration CLI around the parser package:
// fetch a DASH or HLS manifest, print its resolved segment timeline, and
// optionally keep watching a live presentation as it updates.
package main

import (
	"os"

	"manifestd/cmd/manifestd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
