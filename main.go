package main

import "github.com/proxycat/proxycat/cmd"

func main() {
	cmd.Execute()
}
