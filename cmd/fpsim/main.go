package main

import "github.com/jmcleod/fpsim/cmd/fpsim/cmd"

func main() {
	cmd.Execute()
}
