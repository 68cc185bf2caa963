package main

import "go-seedkeeper/cmd/seedkeeper/cmd"

func main() {
	cmd.Execute()
}
