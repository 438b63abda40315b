package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/models"
)

// ------- NOTIFICATIONS -------

type ListOptions struct {
	Limit      int
	UnreadOnly bool
}

func (c *Client) ListNotifications(ctx context.Context, opts ListOptions) ([]models.Notification, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		q.Set("unread_only", "true")
	}
	var out models.NotificationList
	if err := c.do(ctx, http.MethodGet, "/api/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out models.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/read-all", nil, nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, nil, nil)
}

// ------- PAYMENTS -------

func (c *Client) GetPayment(ctx context.Context, id int64) (models.Payment, error) {
	var out models.Payment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/payments/%d", id), nil, nil, &out)
	return out, err
}

// ------- SUPPORT CHAT -------

func (c *Client) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	var out models.Ticket
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d", id), nil, nil, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error) {
	var out models.MessageList
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d/messages", ticketID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, ticketID int64, msg models.OutgoingMessage) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/messages", ticketID), nil, msg, &out)
	return out, err
}

// ------- AUTH (sandbox) -------

type signInResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	var out signInResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/sign_in", nil, in, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("sign in: empty access_token")
	}
	return out.AccessToken, nil
}
