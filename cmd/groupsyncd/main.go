package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Msgf("failed to execute command, err: %v", err)
		os.Exit(1)
	}
}
