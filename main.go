package main

import (
	"os"

	"github.com/openxiino/dataserver/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
