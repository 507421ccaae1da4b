package main

import "github.com/minhqn/ocrflow/internal/cli"

func main() {
	cli.Execute()
}
