package core

import (
	"context"
	"strings"
	"sync"
)

// localIDs holds backend calls aimed at a locally planned analysis until the
// create that assigns its backend id has settled.
type localIDs struct {
	mu       sync.Mutex
	pending  map[string]chan struct{}
	resolved map[string]string
}

func newLocalIDs() *localIDs {
	return &localIDs{
		pending:  make(map[string]chan struct{}),
		resolved: make(map[string]string),
	}
}

// begin marks id as waiting for its create.
func (l *localIDs) begin(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[id]; !ok {
		l.pending[id] = make(chan struct{})
	}
}

// finish releases calls waiting on localID. An empty remoteID means the
// create did not happen and the local id stays. Calling it twice is a no-op.
func (l *localIDs) finish(localID, remoteID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.pending[localID]
	if !ok {
		return
	}
	delete(l.pending, localID)
	if remoteID != "" {
		l.resolved[localID] = remoteID
	}
	close(ch)
}

// current returns the backend id known for id without waiting.
func (l *localIDs) current(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remote, ok := l.resolved[id]; ok {
		return remote
	}
	return id
}

// resolve waits for a pending create of id and returns the id to call the
// backend with.
func (l *localIDs) resolve(ctx context.Context, id string) (string, error) {
	l.mu.Lock()
	ch, ok := l.pending[id]
	l.mu.Unlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return l.current(id), nil
}

// key maps an analysis sequence key to the key of its backend id.
func (l *localIDs) key(key string) string {
	id, ok := strings.CutPrefix(key, analysisKey(""))
	if !ok {
		return key
	}
	return analysisKey(l.current(id))
}
