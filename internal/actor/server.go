package actor

import (
	"context"
	"sync"
)

// Envelope wraps a request with a one-shot reply sender. The request
// sender (Sender[Envelope[Req,Resp]]) is cheaply cloneable; the reply
// channel inside is move-only in spirit — a server actor must send to
// it exactly once. This is how the converter/HTTP-proxy request cycle
// (see §9 of the design) is broken without shared mutable state: the
// requester owns a private one-shot channel for its own reply and
// hands the send-only half to the server inside the envelope.
type Envelope[Req, Resp any] struct {
	Request Req
	reply   chan<- Resp
}

// Reply completes the envelope's one-shot reply channel. Calling it
// more than once panics, matching Go channel semantics for a closed
// send — callers should call it exactly once per envelope received.
func (e Envelope[Req, Resp]) Reply(resp Resp) {
	e.reply <- resp
	close(e.reply)
}

// Ask constructs an envelope around req with a fresh one-shot reply
// channel, sends it to the server's mailbox, and waits for the reply
// or for ctx to be cancelled.
func Ask[Req, Resp any](ctx context.Context, s Sender[Envelope[Req, Resp]], req Req) (Resp, error) {
	reply := make(chan Resp, 1)
	env := Envelope[Req, Resp]{Request: req, reply: reply}
	if err := s.Send(ctx, env); err != nil {
		var zero Resp
		return zero, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}
}

// Handler processes one request and produces one response. Handlers
// used in concurrent mode must be safe to invoke from multiple
// goroutines simultaneously and must not mutate shared state outside
// of what they synchronize themselves — the spec calls this "pure in
// its per-request state".
type Handler[Req, Resp any] func(context.Context, Req) Resp

// Mode selects how a Server dispatches incoming requests.
type Mode int

const (
	// Sequential processes one request at a time, in arrival order.
	Sequential Mode = iota
	// Concurrent processes up to Server.Concurrency requests in
	// flight at once. The handler must tolerate concurrent calls.
	Concurrent
)

// Server is a request/response actor. It owns a mailbox of envelopes
// and dispatches each to a handler, sequentially or with bounded
// concurrency.
type Server[Req, Resp any] struct {
	mailbox     *Mailbox[Envelope[Req, Resp]]
	handler     Handler[Req, Resp]
	mode        Mode
	concurrency int
}

// NewServer creates a server actor with the given mailbox capacity,
// dispatch mode, and handler. concurrency is ignored in Sequential
// mode and must be >= 1 in Concurrent mode.
func NewServer[Req, Resp any](mailboxCapacity int, mode Mode, concurrency int, handler Handler[Req, Resp]) *Server[Req, Resp] {
	if mode == Concurrent && concurrency < 1 {
		concurrency = 1
	}
	return &Server[Req, Resp]{
		mailbox:     NewMailbox[Envelope[Req, Resp]](mailboxCapacity),
		handler:     handler,
		mode:        mode,
		concurrency: concurrency,
	}
}

// Sender returns a handle peers use to send requests. Use Ask to wrap
// a bare request into an envelope and await the reply.
func (s *Server[Req, Resp]) Sender() Sender[Envelope[Req, Resp]] {
	return s.mailbox.Sender()
}

// Run drains the mailbox until it is closed or ctx is cancelled. In
// Sequential mode requests are handled one at a time on the calling
// goroutine. In Concurrent mode, up to s.concurrency handler
// invocations run at once via a bounded worker pool.
func (s *Server[Req, Resp]) Run(ctx context.Context) error {
	if s.mode == Sequential {
		return s.runSequential(ctx)
	}
	return s.runConcurrent(ctx)
}

func (s *Server[Req, Resp]) runSequential(ctx context.Context) error {
	for {
		select {
		case env, ok := <-s.mailbox.Recv():
			if !ok {
				return nil
			}
			resp := s.handler(ctx, env.Request)
			env.Reply(resp)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server[Req, Resp]) runConcurrent(ctx context.Context) error {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case env, ok := <-s.mailbox.Recv():
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(env Envelope[Req, Resp]) {
				defer wg.Done()
				defer func() { <-sem }()
				resp := s.handler(ctx, env.Request)
				env.Reply(resp)
			}(env)
		case <-ctx.Done():
			return nil
		}
	}
}
