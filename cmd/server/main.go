package main

import (
	"fmt"
	"os"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd := newRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "linechat:", err)
		os.Exit(1)
	}
}
