package broker

import "errors"

var (
	// ErrBrokerStopped is returned when an order is placed before Start or
	// after Stop.
	ErrBrokerStopped = errors.New("broker not running")

	// ErrQueueFull is returned when the paper broker's order queue is full.
	ErrQueueFull = errors.New("order queue full")

	// ErrNotConnected is returned by the bridge when the websocket session
	// is down. The caller decides whether to retry or drop.
	ErrNotConnected = errors.New("bridge not connected")
)
