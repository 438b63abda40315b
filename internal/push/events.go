package push

import (
	"encoding/json"
	"fmt"

	"storefront/internal/models"
)

// Envelope is the frame exchanged on the push channel in both directions.
type Envelope struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	TicketID int64           `json:"ticket_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Client → server commands.
const (
	CommandSubscribe   = "subscribe"
	CommandJoinTicket  = "join_ticket"
	CommandLeaveTicket = "leave_ticket"
)

// Server → client events.
const (
	EventNotification  = "notification"
	EventNewMessage    = "new_message"
	EventTicketUpdated = "ticket_updated"
	EventError         = "error"
)

func UserRoom(userID int64) string { return fmt.Sprintf("user:%d", userID) }

func TicketRoom(ticketID int64) string { return fmt.Sprintf("ticket:%d", ticketID) }

func (c *Client) SubscribeUser(userID int64) error {
	return c.Send(Envelope{Type: CommandSubscribe, Room: UserRoom(userID)})
}

func (c *Client) JoinTicket(ticketID int64) error {
	return c.Send(Envelope{Type: CommandJoinTicket, TicketID: ticketID})
}

func (c *Client) LeaveTicket(ticketID int64) error {
	return c.Send(Envelope{Type: CommandLeaveTicket, TicketID: ticketID})
}

// OnNotification decodes notification events. Frames that fail to decode
// are dropped.
func (c *Client) OnNotification(fn func(models.Notification)) {
	c.On(EventNotification, func(raw json.RawMessage) {
		var n models.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			c.logger.Warn("push: bad notification payload", "err", err)
			return
		}
		fn(n)
	})
}

func (c *Client) OnMessage(fn func(models.Message)) {
	c.On(EventNewMessage, func(raw json.RawMessage) {
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("push: bad message payload", "err", err)
			return
		}
		fn(m)
	})
}

func (c *Client) OnTicket(fn func(models.Ticket)) {
	c.On(EventTicketUpdated, func(raw json.RawMessage) {
		var t models.Ticket
		if err := json.Unmarshal(raw, &t); err != nil {
			c.logger.Warn("push: bad ticket payload", "err", err)
			return
		}
		fn(t)
	})
}

// NewEvent builds a server → client frame.
func NewEvent(eventType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: data}, nil
}
