package main

import "github.com/turbobackend/worker/cmd"

func main() {
	cmd.Init()
}
