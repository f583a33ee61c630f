// The main package for the legal-crawler executable.
package main

import "github.com/JakeFAU/legal-corpus-crawler/cmd"

func main() {
	cmd.Execute()
}
