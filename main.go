package main

import "github.com/shouni/go-gallery-trend/cmd"

func main() {
	cmd.Execute()
}
