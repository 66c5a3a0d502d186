package main

import (
	"os"

	"github.com/tsesc/tw-homedog/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
