package scanner

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// LineSource treats every non-blank line of r as one decoded code. It fits
// keyboard-wedge scanners and decoders that print one result per line.
type LineSource struct {
	r    io.Reader
	name string

	mu         sync.Mutex
	subscribed bool
	stopped    atomic.Bool
	done       chan struct{}
}

func NewLineSource(name string, r io.Reader) *LineSource {
	return &LineSource{r: r, name: name}
}

func (s *LineSource) Subscribe(onDecode func(code string), onError func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribed {
		return ErrAlreadySubscribed
	}
	s.subscribed = true
	s.done = make(chan struct{})

	go s.read(onDecode, onError)
	return nil
}

func (s *LineSource) read(onDecode func(string), onError func(error)) {
	defer close(s.done)

	sc := bufio.NewScanner(s.r)
	for sc.Scan() {
		if s.stopped.Load() {
			return
		}
		code := strings.TrimSpace(sc.Text())
		if code == "" {
			continue
		}
		onDecode(code)
	}
	if err := sc.Err(); err != nil && !s.stopped.Load() && onError != nil {
		onError(&DecodeError{Source: s.name, Err: err})
	}
}

// Unsubscribe stops delivery. A read already blocked on r returns at the
// next line or at EOF; nothing it reads is delivered.
func (s *LineSource) Unsubscribe() error {
	s.stopped.Store(true)
	return nil
}

// Done is closed once the reader goroutine has exited. It is nil before
// Subscribe.
func (s *LineSource) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
