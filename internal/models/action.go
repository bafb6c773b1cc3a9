package models

// Action: решение агента на свече. Порядок констант фиксирован:
// по нему индексируется строка Q-таблицы и разрешаются ничьи (раньше — выигрывает).
type Action uint8

const (
	ActionBuy Action = iota
	ActionSell
	ActionHold
)

const NumActions = 3

// Actions: все действия в порядке перебора.
var Actions = [NumActions]Action{ActionBuy, ActionSell, ActionHold}

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// OrderType возвращает сторону сделки; у HOLD её нет.
func (a Action) OrderType() (OrderType, bool) {
	switch a {
	case ActionBuy:
		return OrderBuy, true
	case ActionSell:
		return OrderSell, true
	default:
		return "", false
	}
}

// OrderType как в БД: "BUY"/"SELL".
type OrderType string

const (
	OrderBuy  OrderType = "BUY"
	OrderSell OrderType = "SELL"
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderRunning OrderStatus = "RUNNING"
)
