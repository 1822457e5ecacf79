package main

import "github.com/forPelevin/phasesplit/internal/cli"

func main() { cli.Main() }
