// Command canvas-runner runs annotation canvas text settings flows.
package main

import "github.com/devicelab-dev/canvas-runner/pkg/cli"

func main() {
	cli.Execute()
}
