package optimize

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// errPoolSaturated signals the caller should transform inline instead.
var errPoolSaturated = errors.New("optimize: pool saturated")

type request struct {
	id string
	in Input
}

type response struct {
	res Result
	err error
}

// pool runs transforms on a fixed set of worker goroutines. Each submission
// gets a correlation id; workers post the response to the waiting channel
// registered under that id, so responses cannot be misdelivered no matter
// which worker picks the job up.
type pool struct {
	transform func(Input) (Result, error)

	jobs chan request
	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	waiting map[string]chan response
}

func newPool(workers, queueSize int, transform func(Input) (Result, error)) *pool {
	p := &pool{
		transform: transform,
		jobs:      make(chan request, queueSize),
		quit:      make(chan struct{}),
		waiting:   make(map[string]chan response),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// submit hands the input to a worker and waits for its response. Returns
// errPoolSaturated without blocking when the job buffer is full.
func (p *pool) submit(ctx context.Context, in Input) (Result, error) {
	id := uuid.NewString()
	ch := make(chan response, 1)

	p.mu.Lock()
	p.waiting[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, id)
		p.mu.Unlock()
	}()

	select {
	case p.jobs <- request{id: id, in: in}:
	default:
		return Result{}, errPoolSaturated
	}

	select {
	case resp := <-ch:
		return resp.res, resp.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-p.quit:
		return Result{}, errPoolSaturated
	}
}

func (p *pool) close() {
	close(p.quit)
	p.wg.Wait()
}

func (p *pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.jobs:
			res, err := p.transform(req.in)
			p.mu.Lock()
			ch, ok := p.waiting[req.id]
			p.mu.Unlock()
			if ok {
				ch <- response{res: res, err: err}
			}
		}
	}
}
