// Command istream-player runs a headless adaptive-bitrate MPEG-DASH client.
package main

import (
	"fmt"
	"os"

	"github.com/NetMedia-Sys-Lab/istream-player/cmd/istream-player/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
