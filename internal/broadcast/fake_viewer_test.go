package broadcast

import (
	"fmt"
	"sync"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/google/uuid"
)

// fakeViewer records sent fragments and can be told to fail writes.
type fakeViewer struct {
	id uuid.UUID

	mu       sync.Mutex
	received []domain.Fragment
	sendErr  error
	closed   []string
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{id: uuid.New()}
}

func (f *fakeViewer) ID() uuid.UUID { return f.id }

func (f *fakeViewer) Send(fragment domain.Fragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, fragment)
	return nil
}

func (f *fakeViewer) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, reason)
	return nil
}

func (f *fakeViewer) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeViewer) fragments() []domain.Fragment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Fragment(nil), f.received...)
}

func (f *fakeViewer) closeReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

var errPeerGone = fmt.Errorf("%w: broken pipe", domain.ErrViewerGone)
