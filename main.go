package main

import "github.com/loaninneed/attribution/cmd"

func main() {
	cmd.Execute()
}
