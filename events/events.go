// Package events 發佈訂單事件
package events

import (
	"context"
	"strconv"
	"strings"
	"time"

	"storefront/models"
)

const (
	OrderCreated   = "order.created"
	OrderPaid      = "order.paid"
	OrderShipped   = "order.shipped"
	OrderDelivered = "order.delivered"
	OrderCancelled = "order.cancelled"
)

type Item struct {
	ProductID uint `json:"productID"`
	Quantity  uint `json:"quantity"`
	UnitPrice uint `json:"unitPrice"`
}

type Event struct {
	Type      string    `json:"event"`
	OrderID   uint      `json:"orderID"`
	UserID    uint      `json:"userID"`
	Status    string    `json:"status"`
	Total     uint      `json:"total"`
	Items     []Item    `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// Key 例如 order-created-12
func (e Event) Key() string {
	return "order-" + strings.TrimPrefix(e.Type, "order.") + "-" + strconv.FormatUint(uint64(e.OrderID), 10)
}

// TypeForStatus 訂單狀態對應的事件名稱
func TypeForStatus(status string) string {
	return "order." + status
}

func OrderEvent(eventType string, order *models.Order) Event {
	items := make([]Item, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		items = append(items, Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return Event{
		Type:      eventType,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    order.Status,
		Total:     order.Total,
		Items:     items,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 在未啟用Kafka時使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
