// ABOUTME: Write-once completion handle for one outstanding request.
// ABOUTME: Guards against double resolution when timeout, disconnect and replies race.

package bridge

import (
	"sync"
	"time"
)

// pendingRequest tracks one request awaiting a reply. Its completion
// resolves at most once; later resolution attempts are no-ops. The done
// channel is buffered so resolvers never block on the awaiting caller.
type pendingRequest struct {
	id    string
	done  chan *Response
	once  sync.Once
	timer *time.Timer
}

func newPendingRequest(id string) *pendingRequest {
	return &pendingRequest{
		id:   id,
		done: make(chan *Response, 1),
	}
}

// resolve fulfills the completion with resp (nil means failure) and stops
// the timeout timer. Returns true if this call won the resolution.
func (p *pendingRequest) resolve(resp *Response) bool {
	resolved := false
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.done <- resp
		resolved = true
	})
	return resolved
}
