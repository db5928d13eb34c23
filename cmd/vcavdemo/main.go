// Command vcavdemo plays, serves and checks the scripted handshake demo.
package main

import (
	"fmt"
	"os"

	"github.com/vcav-io/website/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
