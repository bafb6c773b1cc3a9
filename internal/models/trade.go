package models

import "time"

// Trade: запись о сделке. OPEN живёт в брокере с TTL, CLOSED уходит в историю.
type Trade struct {
	ID           string      `json:"id"`
	AccountID    string      `json:"account_id,omitempty"`
	InstrumentID int64       `json:"instrument_id,omitempty"`
	OrderID      string      `json:"order_id,omitempty"`
	OrderType    OrderType   `json:"order_type,omitempty"`
	Status       TradeStatus `json:"status,omitempty"`
	Amount       float64     `json:"amount,omitempty"`
	Price        float64     `json:"price,omitempty"`
	PnL          float64     `json:"pnl"`
	Equity       float64     `json:"equity,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TradeEvent: сообщение в общей очереди SESSION:TRADE.
// OutputQueue: куда рекордер вернёт уведомление.
type TradeEvent struct {
	Type        TradeStatus `json:"type"`
	OutputQueue string      `json:"output_queue"`
	Data        Trade       `json:"data"`
}
