// Command avscand is the antivirus scanning service daemon. It takes no
// arguments; all configuration comes from config.yaml, a .env file, and
// AVSCAN_* environment variables (see internal/config).
package main

import (
	"fmt"
	"os"

	"github.com/ocx/avscan/internal/config"
	"github.com/ocx/avscan/internal/supervisor"
)

func main() {
	cfg := config.Get()

	sup, err := supervisor.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avscand: %v\n", err)
		os.Exit(1)
	}

	if err := sup.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "avscand: %v\n", err)
		os.Exit(1)
	}
}
