package main

import (
	"os"

	"github.com/solatis/rulekeeper/cmd/rulekeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
