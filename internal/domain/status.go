package domain

type (
	// AnnouncementStatus is the lifecycle state of a delivery request.
	AnnouncementStatus string
	// DeliveryStatus is the lifecycle state of a claimed delivery.
	DeliveryStatus string
	// PaymentStatus is the settlement state of an escrow hold.
	PaymentStatus string
	// WithdrawalStatus is the state of a payout request.
	WithdrawalStatus string
	// DocumentStatus is the review state of a single document.
	DocumentStatus string
	// ValidationStatus is the aggregate verification state of an actor.
	ValidationStatus string
)

const (
	AnnouncementDraft      AnnouncementStatus = "DRAFT"
	AnnouncementActive     AnnouncementStatus = "ACTIVE"
	AnnouncementInProgress AnnouncementStatus = "IN_PROGRESS"
	AnnouncementCompleted  AnnouncementStatus = "COMPLETED"
	AnnouncementCancelled  AnnouncementStatus = "CANCELLED"
	AnnouncementSuspended  AnnouncementStatus = "SUSPENDED"
)

const (
	DeliveryAccepted  DeliveryStatus = "ACCEPTED"
	DeliveryPickedUp  DeliveryStatus = "PICKED_UP"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryCompleted DeliveryStatus = "COMPLETED"
	DeliveryCancelled DeliveryStatus = "CANCELLED"
	DeliveryProblem   DeliveryStatus = "PROBLEM"
)

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
	WithdrawalCancelled  WithdrawalStatus = "CANCELLED"
)

const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentApproved DocumentStatus = "APPROVED"
	DocumentRejected DocumentStatus = "REJECTED"
)

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationApproved ValidationStatus = "APPROVED"
	ValidationRejected ValidationStatus = "REJECTED"
)

type transitions[S ~string] map[S]map[S]struct{}

func (t transitions[S]) allows(from, to S) bool {
	next, ok := t[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func (t transitions[S]) known(s S) bool {
	_, ok := t[s]
	return ok
}

var announcementTransitions = transitions[AnnouncementStatus]{
	AnnouncementDraft: {
		AnnouncementActive:    {},
		AnnouncementCancelled: {},
	},
	AnnouncementActive: {
		AnnouncementInProgress: {},
		AnnouncementSuspended:  {},
		AnnouncementCancelled:  {},
	},
	AnnouncementSuspended: {
		AnnouncementActive:    {},
		AnnouncementCancelled: {},
	},
	AnnouncementInProgress: {
		AnnouncementCompleted: {},
		AnnouncementActive:    {},
		AnnouncementSuspended: {},
	},
	AnnouncementCompleted: {},
	AnnouncementCancelled: {},
}

// Completion is accepted from every non-terminal tracking step: the handoff
// code is the proof of delivery, tracking updates are informational.
var deliveryTransitions = transitions[DeliveryStatus]{
	DeliveryAccepted: {
		DeliveryPickedUp:  {},
		DeliveryCompleted: {},
		DeliveryCancelled: {},
		DeliveryProblem:   {},
	},
	DeliveryPickedUp: {
		DeliveryInTransit: {},
		DeliveryCompleted: {},
		DeliveryCancelled: {},
		DeliveryProblem:   {},
	},
	DeliveryInTransit: {
		DeliveryCompleted: {},
		DeliveryCancelled: {},
		DeliveryProblem:   {},
	},
	DeliveryProblem: {
		DeliveryCancelled: {},
	},
	DeliveryCompleted: {},
	DeliveryCancelled: {},
}

var paymentTransitions = transitions[PaymentStatus]{
	PaymentPending: {
		PaymentCompleted: {},
		PaymentRefunded:  {},
		PaymentFailed:    {},
	},
	PaymentCompleted: {},
	PaymentRefunded:  {},
	PaymentFailed:    {},
}

var withdrawalTransitions = transitions[WithdrawalStatus]{
	WithdrawalPending: {
		WithdrawalProcessing: {},
		WithdrawalCancelled:  {},
		WithdrawalFailed:     {},
	},
	WithdrawalProcessing: {
		WithdrawalCompleted: {},
		WithdrawalFailed:    {},
	},
	WithdrawalCompleted: {},
	WithdrawalFailed:    {},
	WithdrawalCancelled: {},
}

var documentTransitions = transitions[DocumentStatus]{
	DocumentPending: {
		DocumentApproved: {},
		DocumentRejected: {},
	},
	DocumentApproved: {},
	DocumentRejected: {},
}

// CanTransition reports whether the announcement may move to next.
func (s AnnouncementStatus) CanTransition(next AnnouncementStatus) bool {
	return announcementTransitions.allows(s, next)
}

// Valid reports whether s is a known announcement status.
func (s AnnouncementStatus) Valid() bool { return announcementTransitions.known(s) }

// CanTransition reports whether the delivery may move to next.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	return deliveryTransitions.allows(s, next)
}

// Terminal reports whether no further transition is possible.
func (s DeliveryStatus) Terminal() bool { return len(deliveryTransitions[s]) == 0 }

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool { return deliveryTransitions.known(s) }

// CanTransition reports whether the payment may move to next.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	return paymentTransitions.allows(s, next)
}

// CanTransition reports whether the withdrawal request may move to next.
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	return withdrawalTransitions.allows(s, next)
}

// Open reports whether the request still holds a reservation on the wallet.
func (s WithdrawalStatus) Open() bool {
	return s == WithdrawalPending || s == WithdrawalProcessing
}

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool { return withdrawalTransitions.known(s) }

// CanTransition reports whether the document may move to next.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	return documentTransitions.allows(s, next)
}
