package main

import "github.com/rampart-ai/rampart/internal/cli"

func main() {
	cli.Execute()
}
