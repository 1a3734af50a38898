// File: server/types.go
// Package server implements the listening-side facade: accept loop,
// per-peer Conn lifecycle, and broadcast send.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "time"

// Config holds all server parameters.
type Config struct {
	ListenAddr      string        // "host:port"
	Network         string        // "tcp" or "udp"
	MaxPacketSize   uint16        // PACKET_SIZE_MAX by default
	CloseTimeout    time.Duration // bounded wait for graceful Shutdown
	ShardCount      int           // peer registry shard count
	ExecutorWorkers int           // size of the server's own executor, drained by Shutdown; handlers run on the executor tbl was built with

	// PreferredCPU pins the accept loop's OS thread via affinity.SetAffinity
	// when >= 0. This is out of the core protocol's scope and
	// is best-effort: a pinning failure is logged, never fatal.
	PreferredCPU int
}

// DefaultConfig returns safe defaults for a single-process deployment.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9000",
		Network:         "tcp",
		MaxPacketSize:   65535,
		CloseTimeout:    10 * time.Second,
		ShardCount:      16,
		ExecutorWorkers: 8,
		PreferredCPU:    -1,
	}
}
