package main

import "doltsync/cmd"

func main() {
	cmd.Execute()
}
