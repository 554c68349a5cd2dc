package orders

import "github.com/caldercommerce/storefront/pkg/enums"

// allowedTransitions is the closed order state machine. Missing targets are
// illegal; terminal states have no outgoing edges.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:  {enums.OrderStatusPaid, enums.OrderStatusFailed, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:     {enums.OrderStatusReturned},
	enums.OrderStatusReturned: {enums.OrderStatusRefunded},
}

// CanTransition reports whether the edge from -> to exists.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
