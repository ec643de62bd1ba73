package main

import "github.com/halcyonlabs/vdisweep/cli"

func main() {
	cli.Execute()
}
