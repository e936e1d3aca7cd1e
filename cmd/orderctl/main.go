// Package main запускает административную утилиту orderctl.
package main

import "github.com/mmeshcher/orderbot/cmd/orderctl/commands"

func main() {
	commands.Execute()
}
