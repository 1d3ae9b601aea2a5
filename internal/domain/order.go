package domain

import "time"

// OrderStatus tracks the fulfilment state of an order linked to a case.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is a customer order that a case can be linked to.
type Order struct {
	ID          string
	CaseID      *string
	OrderNumber string
	Status      OrderStatus
	UpdatedAt   time.Time
}
