package main

import (
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/cli"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
