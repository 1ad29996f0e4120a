// Package main is the entry point for the Bhasha RAG Service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/bhasha/cmd/rag/app"
)

func main() {
	app.NewApp().Run()
}
