// Package main is the single-binary entrypoint for the ModESP controller.
package main

import "github.com/Zapadenec1982/ModESP-sub004/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
