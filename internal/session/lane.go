package session

import (
	"context"
	"sync"
)

// Lanes serializes work per key: holders of the same key run one at a
// time while different keys run in parallel. A key takes memory only while
// it is held or awaited.
type Lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	token chan struct{} // full while the lane is held
	refs  int           // holder plus waiters
}

func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[string]*lane)}
}

// Lock blocks until key is free and returns the function releasing it.
func (l *Lanes) Lock(key string) (unlock func()) {
	unlock, _ = l.LockContext(context.Background(), key)
	return unlock
}

// LockContext is Lock giving up with ctx's error once ctx is done.
func (l *Lanes) LockContext(ctx context.Context, key string) (func(), error) {
	ln := l.join(key)
	select {
	case ln.token <- struct{}{}:
		return sync.OnceFunc(func() {
			<-ln.token
			l.leave(key, ln)
		}), nil
	case <-ctx.Done():
		l.leave(key, ln)
		return nil, ctx.Err()
	}
}

func (l *Lanes) join(key string) *lane {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{token: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	return ln
}

func (l *Lanes) leave(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ln.refs--; ln.refs == 0 {
		delete(l.lanes, key)
	}
}

// Len returns the number of keys held or awaited.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
