package main

import "bereal-backend/cmd"

func main() {
	cmd.Run()
}
