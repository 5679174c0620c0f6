package scanner

import "sync"

// PushSource is fed by callers that already hold decoded text, such as a
// browser-side decoder posting to the terminal's webhook.
type PushSource struct {
	mu       sync.RWMutex
	onDecode func(string)
	onError  func(error)
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (s *PushSource) Subscribe(onDecode func(code string), onError func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onDecode != nil {
		return ErrAlreadySubscribed
	}
	s.onDecode = onDecode
	s.onError = onError
	return nil
}

func (s *PushSource) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onDecode = nil
	s.onError = nil
	return nil
}

// Push delivers code to the subscriber. It reports false when nobody is
// subscribed and the code was dropped.
func (s *PushSource) Push(code string) bool {
	s.mu.RLock()
	fn := s.onDecode
	s.mu.RUnlock()

	if fn == nil {
		return false
	}
	fn(code)
	return true
}

// Fail forwards a decoder-side fault to the subscriber.
func (s *PushSource) Fail(err error) bool {
	s.mu.RLock()
	fn := s.onError
	s.mu.RUnlock()

	if fn == nil {
		return false
	}
	fn(&DecodeError{Source: "push", Err: err})
	return true
}
