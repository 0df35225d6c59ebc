package main

import (
	"minifm/cmd"
)

func main() {
	cmd.Execute()
}
