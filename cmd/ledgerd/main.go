package main

import "github.com/mutualcredit/ledgerd/internal/cli"

func main() {
	cli.Execute()
}
