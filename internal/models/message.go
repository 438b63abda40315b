package models

import "time"

// MessageKind is the closed set of chat message variants.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessagePDF   MessageKind = "pdf"
	MessageAudio MessageKind = "audio"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessagePDF, MessageAudio:
		return true
	}
	return false
}

// Message is a support ticket chat message. AttachmentURL holds either a
// remote URL or an inline data URL.
type Message struct {
	ID             int64       `json:"id"`
	TicketID       int64       `json:"ticket_id"`
	SenderID       int64       `json:"sender_id"`
	IsStaff        bool        `json:"is_staff"`
	Content        string      `json:"message"`
	Type           MessageKind `json:"message_type"`
	AttachmentURL  string      `json:"attachment_url,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty"`
	AttachmentSize int64       `json:"attachment_size,omitempty"`
	IsRead         bool        `json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
}

type MessageList struct {
	Messages []Message `json:"messages"`
}

// OutgoingMessage is the send-message request body.
type OutgoingMessage struct {
	Content        string      `json:"message"`
	Type           MessageKind `json:"message_type"`
	AttachmentURL  string      `json:"attachment_url,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty"`
	AttachmentSize int64       `json:"attachment_size,omitempty"`
}
