package main

import (
	"github.com/joho/godotenv"

	"refcite/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
