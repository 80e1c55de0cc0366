// Command voicebot is a small CLI harness around the voice client core,
// useful for smoke-testing a deployment's config and for scripted
// demonstrations of the connect/transmit lifecycle against an in-memory
// gateway bus. Wiring a real main-gateway connection is the host bot
// framework's job and is out of scope here.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
