package main

import "github.com/ngld/taskrun/cmd"

func main() {
	cmd.Execute()
}
