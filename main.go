package main

import "github.com/medreach/identitybridge/cmd"

func main() {
	cmd.Execute()
}
