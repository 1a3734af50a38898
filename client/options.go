// File: client/options.go
// Package client: functional options applied before Connect.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "time"

// Option customizes a Config before New builds its dependencies.
type Option func(*Config)

// WithNetwork selects "tcp" or "udp" (default "tcp").
func WithNetwork(network string) Option {
	return func(c *Config) { c.Network = network }
}

// WithRequestTimeout overrides the default SendRequest timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithCloseTimeout overrides the bounded wait Disconnect allows.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) { c.CloseTimeout = d }
}

// Apply folds opts into cfg in order and returns cfg for chaining.
func Apply(cfg *Config, opts ...Option) *Config {
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}
