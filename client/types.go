// File: client/types.go
// Package client implements the connecting-side facade: dial, CONNECT
// handshake, request/response correlation, and idempotent Disconnect.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import "time"

// Config holds client connection parameters.
type Config struct {
	Network        string        // "tcp" or "udp"
	MaxPacketSize  uint16        // PACKET_SIZE_MAX by default
	CloseTimeout   time.Duration // bounded wait on Disconnect
	RequestTimeout time.Duration // default SendRequest timeout
}

// DefaultConfig returns safe defaults for a single connection.
func DefaultConfig() *Config {
	return &Config{
		Network:        "tcp",
		MaxPacketSize:  65535,
		CloseTimeout:   10 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}
