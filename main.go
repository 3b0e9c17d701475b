package main

import "github.com/release-tools/go-bumpversion/cmd"

func main() {
	cmd.Execute()
}
