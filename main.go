package main

import "github.com/omniassist/server/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
