// Package model holds the shared domain types for the execution engine:
// orders, positions, and PnL snapshots. Prices are dollars as float64,
// matching what the upstream analytics process publishes.
package model

import "time"

// Action is the side of an order.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// OrderKind distinguishes market and limit orders.
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
)

// OrderStatus values reported by the broker collaborator.
type OrderStatus string

const (
	StatusSubmitted       OrderStatus = "Submitted"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// OrderRequest is one derived broker order. OrderID is assigned locally
// from a monotonic counter and never reused.
type OrderRequest struct {
	OrderID    int64     `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Quantity   int64     `json:"qty"` // always > 0; side is carried by Action
	Kind       OrderKind `json:"order_kind"`
	LimitPrice float64   `json:"limit_price"` // only meaningful for OrderLimit
	CreatedAt  time.Time `json:"created_at"`
}

// Fill is one executed (full or partial) order, as reported by the broker.
type Fill struct {
	OrderID     int64     `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Quantity    int64     `json:"qty"`
	Price       float64   `json:"price"` // average fill price
	RealizedPnL float64   `json:"realized_pnl"`
	FilledAt    time.Time `json:"filled_at"`
}
