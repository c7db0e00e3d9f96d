package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/google/uuid"
)

// fakeConn is an in-memory connection usable as both producer and viewer.
type fakeConn struct {
	id      uuid.UUID
	inbound chan []byte
	sent    chan domain.Fragment
	done    chan struct{}
	recvErr error

	closeOnce sync.Once
	mu        sync.Mutex
	reasons   []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:      uuid.New(),
		inbound: make(chan []byte),
		sent:    make(chan domain.Fragment, 64),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) ID() uuid.UUID { return f.id }

func (f *fakeConn) Receive() ([]byte, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.done:
		return nil, fmt.Errorf("%w: peer closed", domain.ErrConnectionClosed)
	}
}

func (f *fakeConn) Send(fragment domain.Fragment) error {
	select {
	case <-f.done:
		return domain.ErrViewerGone
	default:
	}
	f.sent <- fragment
	return nil
}

func (f *fakeConn) Close(reason string) error {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

// write delivers a frame to the session reading from f.
func (f *fakeConn) write(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeConn) closeReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

// stubRenderer returns the source verbatim, failing for inputs listed in fail.
type stubRenderer struct {
	fail map[string]bool
}

var errStubRender = errors.New("stub render failure")

func (r stubRenderer) Render(source []byte) (domain.Fragment, error) {
	if r.fail[string(source)] {
		return "", &domain.RenderError{Cause: errStubRender}
	}
	return domain.Fragment("<p>" + string(source) + "</p>"), nil
}
