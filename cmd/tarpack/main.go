package main

import (
	"github.com/tarpack/tarpack/cmd/tarpack/cmd"
)

func main() {
	cmd.Execute()
}
