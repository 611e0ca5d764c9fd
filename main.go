package main

import "github.com/moltasthornblom/beam/cmd"

func main() {
	cmd.Execute()
}
