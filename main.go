package main

import "github.com/naka-gawa/github-badges/cmd"

func main() {
	cmd.Execute()
}
