package main

import (
	"asnlog/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("run failed", "error", err)
	}
}
