package main

import "github.com/sendloop/sendloop/cmd"

func main() {
	cmd.Execute()
}
