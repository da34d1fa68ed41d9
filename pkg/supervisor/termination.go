package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Termination records the first request to stop. It is written by the
// signal watcher and read by the loop; nothing else is shared between them.
type Termination struct {
	requested atomic.Bool
	signal    atomic.Value
	once      sync.Once
	done      chan struct{}
}

// NewTermination returns a Termination that was not requested yet.
func NewTermination() *Termination {
	return &Termination{done: make(chan struct{})}
}

// Request marks termination as requested. Only the first call counts.
func (t *Termination) Request(sig os.Signal) {
	t.once.Do(func() {
		if sig != nil {
			t.signal.Store(sig)
		}
		t.requested.Store(true)
		close(t.done)
	})
}

// Requested reports whether termination was requested.
func (t *Termination) Requested() bool {
	return t.requested.Load()
}

// Signal returns the signal that requested termination, nil if none.
func (t *Termination) Signal() os.Signal {
	sig, _ := t.signal.Load().(os.Signal)
	return sig
}

// Done is closed once termination is requested.
func (t *Termination) Done() <-chan struct{} {
	return t.done
}

// Watch requests termination on the first of signals. The signals stay
// subscribed until ctx is done, so later ones are absorbed instead of
// killing the process during teardown.
func (t *Termination) Watch(ctx context.Context, signals ...os.Signal) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		for {
			select {
			case sig := <-c:
				if t.Requested() {
					log.Warnf("Received %v while stopping, ignoring it", sig)
					continue
				}
				t.Request(sig)
			case <-ctx.Done():
				return
			}
		}
	}()
}
