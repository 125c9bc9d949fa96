package message

import "time"

// Message as persisted and as pushed over the wire. Sender and recipient
// names are denormalized from the users table so clients never need a second
// lookup.
type Message struct {
	ID            int       `json:"id"`
	SenderID      int       `json:"senderId"`
	SenderName    string    `json:"senderName"`
	Content       string    `json:"content"`
	Room          string    `json:"room,omitempty"`
	IsPrivate     bool      `json:"isPrivate"`
	RecipientID   *int      `json:"recipientId,omitempty"`
	RecipientName *string   `json:"recipientName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HistoryPage is the paginated response shape for history queries.
type HistoryPage struct {
	Messages    []*Message `json:"messages"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	Total       int        `json:"total"`
}
