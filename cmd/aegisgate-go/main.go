package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/aegisx/aegisgate-go/internal/application/startup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found -- config defaults will be used")
	}

	if err := startup.Initialize(); err != nil {
		log.Fatalf("Application startup failed: %v", err)
	}

	log.Println("Application has shut down gracefully.")
}
