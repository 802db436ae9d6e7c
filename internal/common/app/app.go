package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// CreateContextWithShutdown returns a context that reports done when SIGINT or SIGTERM is received.
// The returned cancel func releases the signal handler.
func CreateContextWithShutdown() (context.Context, context.CancelFunc) {
	return contextWithSignals(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func contextWithSignals(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			log.Warnf("Received %s, aborting", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
