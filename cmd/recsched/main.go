package main

import "github.com/example/recsched/cmd"

func main() {
	cmd.Execute()
}
