// The main package for the iconharvester executable.
package main

import (
	"github.com/JakeFAU/icon-harvester/cmd"
)

func main() {
	cmd.Execute()
}
