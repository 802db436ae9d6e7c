package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/pgload/cmd/pgload/cmd"
	"github.com/G-Research/pgload/internal/common/logging"
)

func main() {
	logging.ConfigureCliLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("pgload failed")
		}
		os.Exit(1)
	}
}
