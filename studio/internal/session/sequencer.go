package session

// Sequencer issues monotonically increasing tokens. Only the latest token
// is current; results carrying an older one are stale. Not safe for
// concurrent use; it lives on the page goroutine.
type Sequencer struct {
	n uint64
}

// Next issues a token, making every earlier one stale.
func (s *Sequencer) Next() uint64 {
	s.n++
	return s.n
}

// Current reports whether tok is the latest token issued.
func (s *Sequencer) Current(tok uint64) bool { return tok != 0 && tok == s.n }

// Last returns the latest token, 0 before the first.
func (s *Sequencer) Last() uint64 { return s.n }
