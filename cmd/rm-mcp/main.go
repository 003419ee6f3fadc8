package main

import "github.com/wavyrai/rm-mcp/cmd/rm-mcp/cmd"

func main() {
	cmd.Execute()
}
