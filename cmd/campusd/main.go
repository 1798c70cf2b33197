package main

import "github.com/nvelasco/campusd/cmd/campusd/cmd"

func main() {
	cmd.Execute()
}
