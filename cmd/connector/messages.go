package main

import "github.com/rxtech-lab/argo-connector/internal/types"

// EventMsg carries one consumed event into the monitor.
type EventMsg struct {
	Event types.LiveEvent
}

// OrderMsg carries the engine's view of an order after an event changed it.
type OrderMsg struct {
	Order types.Order
}
