package main

import (
	"fmt"
	"os"

	"github.com/cleoag/h26xmux/cmd/h26xmux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
