// Commwatch daemon -- shore-side glider session monitor.
package main

import "github.com/seaglider-ops/commwatch/cmd/commwatch/commands"

func main() {
	commands.Execute()
}
