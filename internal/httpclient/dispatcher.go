package httpclient

import (
	"context"
	"fmt"
)

// Dispatcher is an alternative to Registry: it owns its own sessions
// map and a single goroutine that serializes get-or-create-and-submit,
// avoiding the Registry's RWMutex contention at the cost of funneling
// every new-session decision through one channel. Grounded on
// original_source/libs/net/http/v2/client/include/ClientDispatcher.h
// (which owns its own io_context and IO thread for the same reason).
type Dispatcher struct {
	cfg      Config
	sessions map[string]*Session
	cmds     chan dispatchCmd
	done     chan struct{}
}

type dispatchCmd struct {
	host, path, method string
	port               int
	body               []byte
	headers            map[string]string
	cb                 Callback
	ctx                context.Context
}

// NewDispatcher starts the dispatcher's serializing goroutine.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		cmds:     make(chan dispatchCmd, 256),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for cmd := range d.cmds {
		key := sessionKey(cmd.host, cmd.port)
		s, ok := d.sessions[key]
		if !ok || s.IsDead() {
			s = NewSession(cmd.host, cmd.port, d.cfg)
			d.sessions[key] = s
		}
		s.Submit(cmd.ctx, cmd.method, cmd.path, cmd.body, cmd.headers, cmd.cb)
	}
	close(d.done)
}

func sessionKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Submit enqueues a get-or-create-and-submit onto the dispatcher's
// single goroutine.
func (d *Dispatcher) Submit(ctx context.Context, host string, port int, method, path string, body []byte, headers map[string]string, cb Callback) {
	d.cmds <- dispatchCmd{ctx: ctx, host: host, port: port, method: method, path: path, body: body, headers: headers, cb: cb}
}

// Close stops accepting new work and waits for the goroutine to drain.
func (d *Dispatcher) Close() error {
	close(d.cmds)
	<-d.done
	return nil
}
