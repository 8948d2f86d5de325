package main

import "github.com/andresmejia3/reframe/cmd"

func main() {
	cmd.Execute()
}
