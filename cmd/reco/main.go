package main

import (
	"os"

	"github.com/rexfever/showmethestock-sub000/cmd/reco/commands"
)

// main is the entry point for the recommendation lifecycle CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/reco [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
