// Command agent runs the riverwatch environmental telemetry pipeline as
// a long-lived background process.
package main

import (
	"fmt"
	"os"

	"riverwatch.dev/agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
