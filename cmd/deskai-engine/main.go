package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/deskai-dev/deskai/go/internal/cli"
)

func main() {
	cli.Execute()
}
