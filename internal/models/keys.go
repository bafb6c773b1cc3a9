package models

const (
	KeyPrefix  = "SESSION:"
	TradeQueue = KeyPrefix + "TRADE"
)

func OrderKey(sessionID string) string    { return KeyPrefix + "ORDER:" + sessionID }
func InputQueue(sessionID string) string  { return KeyPrefix + "INPUT:" + sessionID }
func OutputQueue(sessionID string) string { return KeyPrefix + "OUTPUT:" + sessionID }

// TradeKey: временная OPEN-запись рекордера.
func TradeKey(tradeID string) string { return TradeQueue + ":" + tradeID }

// Queues: набор ключей одной сессии.
type Queues struct {
	Order  string
	Input  string
	Output string
	Trade  string
}

func SessionQueues(sessionID string) Queues {
	return Queues{
		Order:  OrderKey(sessionID),
		Input:  InputQueue(sessionID),
		Output: OutputQueue(sessionID),
		Trade:  TradeQueue,
	}
}
