package main

import (
	"github.com/marcus/yoga/cmd"
)

// Version may be set at build time via -ldflags "-X main.Version=...".
// If left as "dev", it is derived from Go build info.
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	cmd.Execute()
}
