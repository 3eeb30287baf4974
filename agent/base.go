package agent

import "context"

// BaseAgent is an embeddable no-op implementation of Agent, grounded
// on agents/base.go's embeddable helper: implementations that only
// care about Receive can embed BaseAgent and skip writing trivial
// Started/Stopped bodies.
type BaseAgent struct{}

func (BaseAgent) Started(ctx context.Context) error { return nil }

func (BaseAgent) Stopped(ctx context.Context) error { return nil }
