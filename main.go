package main

import "proppulse-risk/internal/cli"

func main() {
	cli.Execute()
}
