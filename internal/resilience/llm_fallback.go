package resilience

import (
	"context"

	"github.com/codiris/voice/pkg/provider/llm"
)

// LLM is an [llm.Provider] that fails over across chat-completion backends.
type LLM struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM returns an LLM with primary as the preferred backend.
func NewLLM(primaryName string, primary llm.Provider, cfg BreakerConfig) *LLM {
	return &LLM{group: NewGroup[llm.Provider](cfg).Add(primaryName, primary)}
}

// AddFallback registers another backend after those already added.
func (f *LLM) AddFallback(name string, p llm.Provider) *LLM {
	f.group.Add(name, p)
	return f
}

// Complete sends req to the first healthy backend.
func (f *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
