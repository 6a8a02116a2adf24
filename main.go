package main

import "github.com/taskforge/taskforge/cmd"

func main() {
	cmd.Execute()
}
