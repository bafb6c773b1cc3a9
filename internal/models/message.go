package models

import "github.com/shopspring/decimal"

// MessageType: тип сообщения в выходной очереди сессии.
type MessageType string

const (
	MessageChart        MessageType = "chart"
	MessageTrade        MessageType = "trade"
	MessageTradeHistory MessageType = "trade_history"
	MessageStop         MessageType = "stop"
)

// Envelope: минимальная проекция сообщения, чтобы понять его тип.
type Envelope struct {
	Type MessageType `json:"type"`
}

type StopMessage struct {
	Type MessageType `json:"type"`
}

func NewStop() StopMessage { return StopMessage{Type: MessageStop} }

// TradeNotice: уведомление об открытии сделки.
type TradeNotice struct {
	Type      MessageType `json:"type"`
	Time      float64     `json:"time"`
	OrderType OrderType   `json:"order_type"`
	Price     string      `json:"price"`
}

// HistoryNotice: закрытая сделка для ленты истории.
type HistoryNotice struct {
	Type      MessageType `json:"type"`
	Time      float64     `json:"time"`
	OrderType OrderType   `json:"order_type"`
	Amount    float64     `json:"amount"`
	Price     float64     `json:"price"`
	PnL       float64     `json:"pnl"`
}

// NewTradeNotice: цена строкой с двумя знаками, как её показывает клиент.
func NewTradeNotice(t Trade) TradeNotice {
	return TradeNotice{
		Type:      MessageTrade,
		Time:      unixSeconds(t.CreatedAt),
		OrderType: t.OrderType,
		Price:     decimal.NewFromFloat(t.Price).StringFixed(2),
	}
}

func NewHistoryNotice(t Trade) HistoryNotice {
	return HistoryNotice{
		Type:      MessageTradeHistory,
		Time:      unixSeconds(t.CreatedAt),
		OrderType: t.OrderType,
		Amount:    t.Amount,
		Price:     t.Price,
		PnL:       t.PnL,
	}
}
