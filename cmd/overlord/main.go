package main

import "Overlord/internal/cli"

func main() {
	cli.Execute()
}
