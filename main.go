package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"comment-map/cmd"
	"comment-map/config"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	path, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	root := cmd.Root(cfg)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
