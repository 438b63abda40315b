package models

import (
	"encoding/json"
	"time"
)

// NotificationCategory is the closed set of notification kinds.
type NotificationCategory string

const (
	CategoryOrder  NotificationCategory = "order"
	CategoryStock  NotificationCategory = "stock"
	CategorySystem NotificationCategory = "system"
	CategoryCoupon NotificationCategory = "coupon"
)

// ParseNotificationCategory maps unknown values to CategorySystem.
func ParseNotificationCategory(s string) NotificationCategory {
	switch NotificationCategory(s) {
	case CategoryOrder, CategoryStock, CategorySystem, CategoryCoupon:
		return NotificationCategory(s)
	default:
		return CategorySystem
	}
}

func (c *NotificationCategory) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ParseNotificationCategory(raw)
	return nil
}

type Notification struct {
	ID        int64                `json:"id"`
	UserID    int64                `json:"user_id"`
	Type      NotificationCategory `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Data      json.RawMessage      `json:"data,omitempty"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total,omitempty"`
}

type UnreadCount struct {
	Count int `json:"count"`
}
