package main

import "github.com/camden-git/attendancesys/cmd"

func main() {
	cmd.Execute()
}
