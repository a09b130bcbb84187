package main

import "github.com/wenqinglim/euterpe/internal/cli"

func main() {
	cli.Execute()
}
