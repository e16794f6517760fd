package main

import "capowatch/internal/cli"

func main() {
	cli.Execute()
}
