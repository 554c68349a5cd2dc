package enums

// OutboxEventType identifies the domain event stored in the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderPaid          OutboxEventType = "order.paid"
	EventOrderFailed        OutboxEventType = "order.failed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventReservationExpired OutboxEventType = "reservation.expired"
	EventCartAbandoned      OutboxEventType = "cart.abandoned"
	EventInventoryAdjusted  OutboxEventType = "inventory.adjusted"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateCart        OutboxAggregateType = "cart"
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateInventory   OutboxAggregateType = "inventory"
)
