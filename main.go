package main

import (
	"github.com/crossflow/crossflow/cmd"
)

func main() {
	cmd.Execute()
}
