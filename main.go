package main

import "chanqueue-bot/cmd"

func main() {
	cmd.Execute()
}
