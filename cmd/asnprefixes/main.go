package main

import (
	"asnlog/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.RunPrefixes(); err != nil {
		log.Fatal("run failed", "error", err)
	}
}
