package main

import "github.com/vibast-solutions/ms-go-user/cmd"

func main() {
	cmd.Execute()
}
