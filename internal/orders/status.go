package orders

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentAwaiting PaymentStatus = "awaiting_payment"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusDraft:     {StatusPending: true, StatusConfirmed: true, StatusCancelled: true},
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusReady: true, StatusCancelled: true},
	StatusReady:     {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

// paid is terminal; a failed payment stays re-payable.
var validPaymentNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentAwaiting: {PaymentPaid: true, PaymentFailed: true},
	PaymentFailed:   {PaymentPaid: true},
	PaymentPaid:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validPaymentNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

// Cancellable reports whether the customer may still cancel the order.
func Cancellable(s Status, p PaymentStatus) bool {
	return (s == StatusDraft || s == StatusPending) && p != PaymentPaid
}
