// File: server/options.go
// Package server defines functional options applied before Run.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "time"

// ServerOption customizes a Config before NewServer builds its pooled
// dependencies.
type ServerOption func(*Config)

// WithNetwork selects "tcp" or "udp" (default "tcp").
func WithNetwork(network string) ServerOption {
	return func(c *Config) { c.Network = network }
}

// WithExecutorWorkers sets the size of the server's own executor, which
// Shutdown drains. Subscriber handlers run on the executor the dispatch
// table passed to NewServer was built with; this option does not change it.
func WithExecutorWorkers(n int) ServerOption {
	return func(c *Config) { c.ExecutorWorkers = n }
}

// WithShardCount overrides the peer registry's shard count.
func WithShardCount(n int) ServerOption {
	return func(c *Config) { c.ShardCount = n }
}

// WithCloseTimeout overrides the bounded wait Shutdown allows for
// graceful teardown.
func WithCloseTimeout(d time.Duration) ServerOption {
	return func(c *Config) { c.CloseTimeout = d }
}

// WithPreferredCPU pins the accept loop's OS thread to cpuID (see
// affinity.SetAffinity). Pass -1 (the default) to disable pinning.
func WithPreferredCPU(cpuID int) ServerOption {
	return func(c *Config) { c.PreferredCPU = cpuID }
}

// Apply folds opts into cfg in order and returns cfg for chaining.
func Apply(cfg *Config, opts ...ServerOption) *Config {
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}
