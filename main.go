package main

import "github.com/ducth/stallbot/cmd"

func main() {
	cmd.Execute()
}
