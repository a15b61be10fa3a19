package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/chronoplan/scheduler/schedulerservice"
)

func main() {
	if err := schedulerservice.Run(); err != nil {
		log.Error().Err(err).Msg("scheduler-service exited with error")
		os.Exit(1)
	}
}
