package main

import "github.com/nextlevelbuilder/gobutler/cmd"

func main() {
	cmd.Execute()
}
