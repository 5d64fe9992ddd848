package agent

import (
	"context"
	"sync"
	"time"

	"npa/draftbuilder/internal/logx"
)

// DispatcherConfig wires a Dispatcher to its session.
type DispatcherConfig struct {
	Replier Replier
	// Delay is how long after submission a reply is requested.
	Delay time.Duration
	// Timeout bounds a single replier call.
	Timeout time.Duration
	// Request builds the replier input for a trigger at the time it fires.
	Request func(trigger Message) Request
	// Deliver appends a produced reply to the session.
	Deliver func(reply Message)
	// Failed is told about triggers whose reply could not be produced.
	Failed func(trigger Message, err error)
}

type pendingReply struct {
	trigger Message
	due     time.Time
}

// Dispatcher produces one deferred agent reply per scheduled user message.
// Replies are requested and delivered strictly in scheduling order. Close
// cancels everything still pending; nothing is delivered afterwards.
type Dispatcher struct {
	cfg     DispatcherConfig
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	pending []pendingReply
	wake    chan struct{}
	done    chan struct{}
}

// NewDispatcher starts the dispatch loop.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Schedule queues a reply to trigger. It never blocks.
func (d *Dispatcher) Schedule(trigger Message) bool {
	if d.ctx.Err() != nil {
		return false
	}
	d.mu.Lock()
	d.pending = append(d.pending, pendingReply{trigger: trigger, due: time.Now().Add(d.cfg.Delay)})
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of replies not yet delivered or dropped.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close cancels pending replies and waits for the loop to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		next, ok := d.peek()
		if !ok {
			select {
			case <-d.ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}

		if wait := time.Until(next.due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-d.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		d.dispatch(next)
		d.pop()
		if d.ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) dispatch(p pendingReply) {
	var req Request
	if d.cfg.Request != nil {
		req = d.cfg.Request(p.trigger)
	} else {
		req = Request{Trigger: p.trigger}
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	reply, err := d.cfg.Replier.Reply(ctx, req)
	cancel()
	if err != nil {
		if d.ctx.Err() != nil {
			return
		}
		if d.cfg.Failed != nil {
			d.cfg.Failed(p.trigger, err)
		} else {
			logx.Warn().Err(err).Str("trigger", p.trigger.ID).Msg("agent reply failed")
		}
		return
	}
	if d.ctx.Err() != nil {
		return
	}
	if reply.Role == "" {
		reply.Role = RoleAgent
	}
	if d.cfg.Deliver != nil {
		d.cfg.Deliver(reply)
	}
}

func (d *Dispatcher) peek() (pendingReply, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return pendingReply{}, false
	}
	return d.pending[0], true
}

func (d *Dispatcher) pop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) > 0 {
		d.pending = d.pending[1:]
	}
}
