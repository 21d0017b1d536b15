package main

import "github.com/h2load-go/h2load/cmd"

func main() {
	cmd.Execute()
}
