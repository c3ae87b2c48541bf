package provider

// Event kinds delivered on the settlement webhook. Only checkout completion
// is acted on; everything else is acknowledged and dropped.
const EventCheckoutCompleted = "checkout.session.completed"

// Metadata keys embedded into checkout sessions at creation and echoed back
// in settlement events.
const (
	MetadataPaymentID = "payment_id"
	MetadataInvoiceID = "invoice_id"
	MetadataStudentID = "student_id"
)

type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object EventSession `json:"object"`
	} `json:"data"`
}

type EventSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Customer      string            `json:"customer"`
	Metadata      map[string]string `json:"metadata"`
}
