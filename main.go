package main

import "github.com/andresmejia3/rashplayer/cmd"

func main() {
	cmd.Execute()
}
