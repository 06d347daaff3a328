package models

const (
	TransferIn  = "in"
	TransferOut = "out"
)

// BankTransferNotification is the payload pushed by the bank-transfer rail.
type BankTransferNotification struct {
	ID              int64  `json:"id"`
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	Code            string `json:"code"`
	Content         string `json:"content"`
	TransferType    string `json:"transferType"`
	TransferAmount  int64  `json:"transferAmount"`
	Accumulated     int64  `json:"accumulated"`
	SubAccount      string `json:"subAccount"`
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
}

// WebhookResult is always returned with HTTP 200; Success carries the
// business outcome.
type WebhookResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PaymentID string `json:"paymentId,omitempty"`
}
