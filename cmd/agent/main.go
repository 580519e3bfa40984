// Command mtagent is the agent process entry point; all flag/command
// definitions live in internal/cmd.
package main

import "github.com/mtconnect-org/agent/internal/cmd"

func main() {
	cmd.Execute()
}
