// The main package for the skinfetch executable.
package main

import (
	"github.com/xZoluGames/skinfetch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
