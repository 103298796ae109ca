// vl1ctl -- CLI client for inspecting a running vl1d node.
package main

import "github.com/dantte-lp/vl1node/cmd/vl1ctl/commands"

func main() {
	commands.Execute()
}
