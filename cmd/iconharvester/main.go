// Package main is the container entrypoint for the icon harvester.
package main

import (
	"github.com/JakeFAU/icon-harvester/cmd"
)

func main() {
	cmd.Execute()
}
