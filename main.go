// The main package for the harvester executable.
package main

import (
	"github.com/aitoolsdir/harvester/cmd"
)

func main() {
	cmd.Execute()
}
