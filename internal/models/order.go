package models

import "time"

// Order: управляющая запись сессии (ключ SESSION:ORDER:<sid>).
// Пока ключ есть — сессия жива; удаление ключа = отмена.
type Order struct {
	OrderID          string      `json:"order_id"`
	AccountID        string      `json:"account_id"`
	InstrumentID     int64       `json:"instrument_id"`
	InstrumentSymbol string      `json:"instrument_symbol"`
	StopLoss         float64     `json:"stop_loss"`   // нижняя граница equity
	TakeProfit       float64     `json:"take_profit"` // верхняя граница equity
	Amount           float64     `json:"amount"`      // стартовый equity
	Duration         string      `json:"duration"`
	Status           OrderStatus `json:"status"`
}

// TTL из Duration ("30m", "2h"); пустое/битое значение => def.
func (o Order) TTL(def time.Duration) time.Duration {
	if o.Duration == "" {
		return def
	}
	d, err := time.ParseDuration(o.Duration)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
