// The main package for the site-ingest executable.
package main

import (
	"github.com/JakeFAU/site-ingest/cmd"
)

func main() {
	cmd.Execute()
}
