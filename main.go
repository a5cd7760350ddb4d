package main

import "github.com/agentic-research/hstore/cmd"

func main() {
	cmd.Execute()
}
