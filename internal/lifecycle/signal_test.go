//go:build unix

package lifecycle

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateForSignal(t *testing.T) {
	tests := []struct {
		name string
		sig  syscall.Signal
		want AppState
		ok   bool
	}{
		{"usr1 backgrounds", syscall.SIGUSR1, Background, true},
		{"usr2 foregrounds", syscall.SIGUSR2, Active, true},
		{"cont foregrounds", syscall.SIGCONT, Active, true},
		{"other ignored", syscall.SIGHUP, Active, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stateForSignal(tt.sig)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalSourceDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := SignalSource(ctx)
	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case s := <-source:
		assert.Equal(t, Background, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no state delivered for SIGUSR1")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-source:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
