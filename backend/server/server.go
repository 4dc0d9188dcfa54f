package main

import "github.com/govdir/govdir/backend/server/cmd"

func main() {
	cmd.Execute()
}
