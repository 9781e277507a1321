package main

import "github.com/user/chainsec-adk/cmd"

func main() {
	cmd.Execute()
}
