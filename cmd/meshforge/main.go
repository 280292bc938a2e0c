// Command meshforge loads triangle meshes, runs them through a sequence of
// processing stages and exports the result.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "meshforge:", err)
		os.Exit(1)
	}
}
