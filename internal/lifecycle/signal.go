//go:build unix

package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalSource maps process signals to host states for daemons:
// SIGUSR1 moves to the background, SIGUSR2 and SIGCONT bring it back.
// The channel is closed when ctx is done.
func SignalSource(ctx context.Context) <-chan AppState {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT)

	out := make(chan AppState)
	go func() {
		defer close(out)
		defer signal.Stop(sigs)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				state, ok := stateForSignal(sig)
				if !ok {
					continue
				}
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func stateForSignal(sig os.Signal) (AppState, bool) {
	switch sig {
	case syscall.SIGUSR1:
		return Background, true
	case syscall.SIGUSR2, syscall.SIGCONT:
		return Active, true
	default:
		return Active, false
	}
}
