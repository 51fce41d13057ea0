package main

import "etfwatch/internal/cli"

func main() {
	cli.Execute()
}
