package main

import "github.com/sw33tLie/puzzleimport/cmd"

func main() {
	cmd.Execute()
}
