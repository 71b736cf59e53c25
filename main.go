// Package main is the entry point for the schemata CLI.
package main

import "gooze.dev/pkg/schemata/cmd"

func main() {
	cmd.Execute()
}
