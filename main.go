// The main package for the geodata executable.
package main

import (
	"github.com/JakeFAU/geodata/cmd"
)

func main() {
	cmd.Execute()
}
