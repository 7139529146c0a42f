// Package mock provides a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"corrected":"buy BUND","corrections":[]}`},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/bondvox/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider records every request and answers from its fields. Set the
// fields before the first call.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, when set, produces the answer and the fields below are
	// ignored.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned (as a copy) when CompleteErr is nil. Nil
	// yields an empty response.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr is returned as the error when non-nil.
	CompleteErr error

	// CompleteCalls holds every call in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	switch {
	case fn != nil:
		return fn(ctx, req)
	case err != nil:
		return nil, err
	case resp == nil:
		return &llm.CompletionResponse{}, nil
	}
	out := *resp
	return &out, nil
}

// CallCount returns the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the most recent request, or false before any call.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}

// Reset forgets all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
