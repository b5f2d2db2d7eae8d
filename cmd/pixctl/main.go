package main

import "pixrepo/cmd/pixctl/cmd"

func main() {
	cmd.Execute()
}
