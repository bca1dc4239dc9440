package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/wayfinder-io/wayfinder/cmd/wayfinder-client/app"
)

func main() {
	if err := app.NewWayfinderClientCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
