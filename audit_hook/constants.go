package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoiceDeleted = "invoice.deleted"
	ActionInvoicePaid    = "invoice.paid"
	ActionInvoiceOverdue = "invoice.overdue"

	// Payment actions
	ActionPaymentRecorded = "payment.recorded"
	ActionPaymentUpdated  = "payment.updated"
	ActionPaymentDeleted  = "payment.deleted"

	// Score actions
	ActionScoreRecorded = "score.recorded"

	// Redemption actions
	ActionRedemptionRequested = "redemption.requested"
	ActionRedemptionApproved  = "redemption.approved"
	ActionRedemptionRejected  = "redemption.rejected"
	ActionRedemptionPickup    = "redemption.pickup_chosen"
	ActionRedemptionDelivered = "redemption.delivered"
)

// Resource constants for audit events.
const (
	ResourceInvoice    = "invoice"
	ResourcePayment    = "payment"
	ResourceScore      = "score"
	ResourceRedemption = "redemption"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
	CategoryRewards = "rewards"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
