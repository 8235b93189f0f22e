package main

import "github.com/agentic-research/fastener/cmd"

func main() {
	cmd.Execute()
}
