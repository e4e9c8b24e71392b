package refresh

import "sync"

// identityLocks hands out one mutex per identity and forgets it once no
// goroutine holds or waits for it.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	sync.Mutex
	refs int
}

func (l *identityLocks) lock(identityID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*identityLock)
	}
	il, ok := l.locks[identityID]
	if !ok {
		il = &identityLock{}
		l.locks[identityID] = il
	}
	il.refs++
	l.mu.Unlock()

	il.Lock()
	return func() {
		il.Unlock()
		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.locks, identityID)
		}
		l.mu.Unlock()
	}
}
