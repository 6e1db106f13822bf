package main

import "github.com/devicelab-dev/device-features-runner/pkg/cli"

func main() {
	cli.Execute()
}
