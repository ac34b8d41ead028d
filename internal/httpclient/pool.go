package httpclient

import "sync/atomic"

// Pool holds N sessions to the same peer and submits requests to them
// round-robin, trading session reuse for reduced per-session
// contention under high concurrency. Grounded on
// original_source/libs/net/http/v2/client/src/Http2ClientPool.cpp.
type Pool struct {
	sessions []*Session
	next     atomic.Uint64
}

// NewPool creates a Pool of size sessions to host:port.
func NewPool(host string, port int, size int, cfg Config) *Pool {
	if size < 1 {
		size = 1
	}
	sessions := make([]*Session, size)
	for i := range sessions {
		sessions[i] = NewSession(host, port, cfg)
	}
	return &Pool{sessions: sessions}
}

// Next returns the next session in round-robin order.
func (p *Pool) Next() *Session {
	i := p.next.Add(1) - 1
	return p.sessions[i%uint64(len(p.sessions))]
}

// Close closes every session in the pool.
func (p *Pool) Close() error {
	var firstErr error
	for _, s := range p.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
