package main

import (
	"omegamusic/cmd"
)

func main() {
	cmd.Execute()
}
