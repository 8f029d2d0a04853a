package app

import (
	"context"
	"fmt"
)

// Pinger is the connectivity probe implemented by the store and sandbox
// clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a bare function to the Pinger interface.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// BuildReadinessChecks returns the per-dependency readiness checks for the
// store and the sandbox runtime. A nil dependency yields a check that always
// fails.
func BuildReadinessChecks(store, sandbox Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	storeCheck := func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("redis not configured")
		}
		return store.Ping(ctx)
	}
	sandboxCheck := func(ctx context.Context) error {
		if sandbox == nil {
			return fmt.Errorf("docker not configured")
		}
		return sandbox.Ping(ctx)
	}
	return storeCheck, sandboxCheck
}
