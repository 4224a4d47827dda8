// Command gantry runs autonomous coding sessions against a repository.
package main

import "github.com/gantry-dev/gantry/internal/cli"

func main() {
	cli.Execute()
}
