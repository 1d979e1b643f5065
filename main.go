package main

import "github.com/parisxmas/OxiDB/OxiAudit/cmd"

func main() {
	cmd.Execute()
}
