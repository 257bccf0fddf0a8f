// The main package for the linkpipe executable.
package main

import "github.com/JakeFAU/linkpipe/cmd"

func main() {
	cmd.Execute()
}
