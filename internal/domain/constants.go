package domain

// Roles carried in the JWT "role" claim.
const (
	RoleClient    = "CLIENT"
	RoleDeliverer = "DELIVERER"
	RoleProvider  = "PROVIDER"
	RoleMerchant  = "MERCHANT"
	RoleAdmin     = "ADMIN"
)

// Wallet transaction types. Amounts are signed by type: deposits and refunds
// are positive, withdrawals and payments negative.
const (
	TxTypeDeposit    = "DEPOSIT"
	TxTypeWithdrawal = "WITHDRAWAL"
	TxTypePayment    = "PAYMENT"
	TxTypeRefund     = "REFUND"

	TxStatusCompleted = "COMPLETED"
)

// PaymentTypeDelivery is the only payment type produced by the matching flow.
const PaymentTypeDelivery = "DELIVERY"

// Withdrawal methods.
const (
	MethodBankTransfer  = "BANK_TRANSFER"
	MethodStripeConnect = "STRIPE_CONNECT"
)

// Review decisions.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

// Withdrawal amounts above these thresholds (in micros) are flagged for the admin queue.
const (
	WithdrawalReviewThreshold   int64 = 1000 * MicrosPerUnit
	WithdrawalPriorityThreshold int64 = 500 * MicrosPerUnit
)

// ValidationCodeLength is the number of digits in a handoff code.
const ValidationCodeLength = 6

// IsCreditType reports whether txType increases a wallet balance.
func IsCreditType(txType string) bool {
	return txType == TxTypeDeposit || txType == TxTypeRefund
}

// IsDebitType reports whether txType decreases a wallet balance.
func IsDebitType(txType string) bool {
	return txType == TxTypeWithdrawal || txType == TxTypePayment
}

// ValidMethod reports whether m is a supported withdrawal method.
func ValidMethod(m string) bool {
	return m == MethodBankTransfer || m == MethodStripeConnect
}
