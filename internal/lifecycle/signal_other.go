//go:build !unix

package lifecycle

import (
	"context"
)

// SignalSource has no signals to watch on this platform; the channel closes
// when ctx is done
func SignalSource(ctx context.Context) <-chan AppState {
	out := make(chan AppState)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}
