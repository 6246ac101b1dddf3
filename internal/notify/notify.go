// Package notify hands new-message notifications to the external
// notification pipeline (push/email workers consuming an AMQP queue).
package notify

// Notification is the payload handed to the notification pipeline when
// a participant receives a message while away.
type Notification struct {
	RecipientID string `json:"recipientId"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Link        string `json:"link"`
}
