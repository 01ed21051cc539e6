package main

import "github.com/joshdurbin/sportlog/internal/cmd"

func main() {
	cmd.Execute()
}
