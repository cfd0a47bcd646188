package main

import "github.com/naka-gawa/github-trailer/cmd"

func main() {
	cmd.Execute()
}
