package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var (
	signalCtx context.Context
	cancel    context.CancelFunc
	once      sync.Once
)

// Context returns a Context registered to close on SIGTERM and SIGINT.
// The fuzz loops abandon the current round and return once it is done.
// If a second signal is caught, the program is terminated with exit code 1.
func Context(logger logrus.FieldLogger) context.Context {
	once.Do(func() {
		c := make(chan os.Signal, 2)
		signal.Notify(c, shutdownSignals...)
		signalCtx, cancel = context.WithCancel(context.Background())
		go func() {
			sig := <-c
			if logger != nil {
				logger.WithField("signal", sig.String()).Info("shutting down after current round")
			}
			cancel()

			<-c
			os.Exit(1) // second signal. Exit directly.
		}()
	})

	return signalCtx
}
