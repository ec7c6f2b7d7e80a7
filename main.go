package main

import "github.com/knostack/knosync/cmd"

func main() {
	cmd.Execute()
}
