package usecase

import (
	"context"
	"sync"
)

// MailboxLocker serializes work per mailbox inside one process
type MailboxLocker struct {
	mu    sync.Mutex
	locks map[string]*mailboxLock
}

type mailboxLock struct {
	ch   chan struct{}
	refs int
}

func NewMailboxLocker() *MailboxLocker {
	return &MailboxLocker{locks: make(map[string]*mailboxLock)}
}

// Lock blocks until the mailbox is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (l *MailboxLocker) Lock(ctx context.Context, mailboxID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[mailboxID]
	if !ok {
		lk = &mailboxLock{ch: make(chan struct{}, 1)}
		l.locks[mailboxID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(mailboxID, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(mailboxID, lk)
		})
	}, nil
}

func (l *MailboxLocker) release(mailboxID string, lk *mailboxLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, mailboxID)
	}
}
