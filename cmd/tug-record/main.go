package main

import "github.com/tugtools/tug/internal/cli/record"

func main() {
	record.Execute()
}
