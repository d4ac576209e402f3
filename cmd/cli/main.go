package main

import "github.com/spgemm-symbolic/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
