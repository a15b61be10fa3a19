package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/chronoplan/scheduler/sweeperworker"
)

func main() {
	if err := sweeperworker.Run(); err != nil {
		log.Error().Err(err).Msg("sweeper-worker exited with error")
		os.Exit(1)
	}
}
