package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicCheckoutStarted  = "checkout.started"
	TopicPaymentSucceeded = "payment.succeeded"
	TopicPaymentFailed    = "payment.failed"
	TopicReceiptIssued    = "receipt.issued"
	TopicReceiptDismissed = "receipt.dismissed"
)

// DefaultTopics returns every topic the storefront emits.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutStarted,
		TopicPaymentSucceeded,
		TopicPaymentFailed,
		TopicReceiptIssued,
		TopicReceiptDismissed,
	}
}
