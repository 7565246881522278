package main

import "qtforge/internal/qtforge"

func main() {
	qtforge.Main()
}
