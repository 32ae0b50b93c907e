package main

import "github.com/agentic-research/resonance/cmd"

func main() {
	cmd.Execute()
}
