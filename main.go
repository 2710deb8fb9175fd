package main

import "github.com/framefolio/ms-go-downloads/cmd"

func main() {
	cmd.Execute()
}
