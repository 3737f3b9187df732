package main

import "github.com/kebairia/dbsnap/cmd"

func main() {
	cmd.Execute()
}
