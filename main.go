package main

import "github.com/reapersql/reaper/cmd"

func main() {
	cmd.Execute()
}
