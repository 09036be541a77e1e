package main

import (
	"os"

	"occupancy-forecast/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
