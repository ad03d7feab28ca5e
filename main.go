package main

import "imapsh/internal/cli"

func main() {
	cli.Execute()
}
