package main

import "github.com/hayate-dl/hayate/cmd"

func main() {
	cmd.Execute()
}
