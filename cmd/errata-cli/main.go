// package main is the entry point of the errata-cli command line tool
package main

import "github.com/ortelius/errata-finder/cmd"

func main() {
	cmd.Execute()
}
