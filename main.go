package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "1.0.0"

func main() {
	log.SetFlags(0)

	// Environment variables take precedence over .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cobra.CheckErr(newRootCmd().Execute())
}
