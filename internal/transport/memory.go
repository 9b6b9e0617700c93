package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-process Transport used by tests and by the integration
// round test: every node shares one *Memory instance, addressed by an
// arbitrary string id rather than a host:port, and delivery is a plain
// map-plus-mutex mailbox the way internal/storage.MemoryStore holds its
// key/value map.
type Memory struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inboxes map[string][][]byte
	files   map[string][]string
}

// NewMemory constructs an empty mailbox set.
func NewMemory() *Memory {
	m := &Memory{
		inboxes: make(map[string][][]byte),
		files:   make(map[string][]string),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// SendTo appends payload to addr's inbox and wakes any blocked receivers.
func (m *Memory) SendTo(_ context.Context, addr string, payload []byte) error {
	cp := append([]byte(nil), payload...)
	m.mu.Lock()
	m.inboxes[addr] = append(m.inboxes[addr], cp)
	m.mu.Unlock()
	m.cond.Broadcast()
	return nil
}

// SendFileTo copies the file at path into a fresh temp file and records its
// path in addr's file inbox, so receivers never share the sender's handle.
func (m *Memory) SendFileTo(_ context.Context, addr, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %q: %v", ErrTransport, path, err)
	}
	out, err := os.CreateTemp("", "mem-file-*.bin")
	if err != nil {
		return fmt.Errorf("%w: spool %q: %v", ErrTransport, path, err)
	}
	defer out.Close()
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("%w: spool %q: %v", ErrTransport, path, err)
	}

	m.mu.Lock()
	m.files[addr] = append(m.files[addr], out.Name())
	m.mu.Unlock()
	m.cond.Broadcast()
	return nil
}

// RecvFromN blocks until addr's inbox holds at least n messages, then drains
// and returns exactly n of them. The returned addresses are all addr, since
// this fake has no notion of a distinct observed peer address.
func (m *Memory) RecvFromN(ctx context.Context, addr string, n int) ([][]byte, []string, error) {
	msgs, err := waitAndDrain(ctx, &m.mu, m.cond, m.inboxes, addr, n)
	if err != nil {
		return nil, nil, err
	}
	return msgs, sameAddr(addr, n), nil
}

// RecvFilesFromN is RecvFromN's file-path counterpart.
func (m *Memory) RecvFilesFromN(ctx context.Context, addr string, n int, _ string) ([]string, []string, error) {
	paths, err := waitAndDrain(ctx, &m.mu, m.cond, m.files, addr, n)
	if err != nil {
		return nil, nil, err
	}
	return paths, sameAddr(addr, n), nil
}

func sameAddr(addr string, n int) []string {
	froms := make([]string, n)
	for i := range froms {
		froms[i] = addr
	}
	return froms
}

// waitAndDrain blocks until box[addr] holds at least n entries, then takes
// the oldest n off the front. Generic over the mailbox's element type so
// RecvFromN's [][]byte inboxes and RecvFilesFromN's []string file lists
// share one implementation.
func waitAndDrain[T any](ctx context.Context, mu *sync.Mutex, cond *sync.Cond, box map[string][]T, addr string, n int) ([]T, error) {
	done := make(chan struct{})
	go func() {
		mu.Lock()
		for len(box[addr]) < n {
			cond.Wait()
		}
		mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for %d deliveries to %q: %v", ErrTransport, n, addr, ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	got := box[addr][:n]
	box[addr] = box[addr][n:]
	return got, nil
}
