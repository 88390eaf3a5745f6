package main

import "surveyor/cmd"

func main() {
	cmd.Execute()
}
