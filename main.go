package main

import "github.com/kobosh/crosschat-go/cmd"

func main() {
	cmd.Execute()
}
