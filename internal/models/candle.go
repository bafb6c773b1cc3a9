package models

// Candle: бар исторического ряда, как его кладёт чарт-продюсер во входную очередь.
// Терминальная запись — {"exit": true}.
type Candle struct {
	Type  MessageType `json:"type,omitempty"`
	Time  float64     `json:"time,omitempty"` // unix seconds
	Open  float64     `json:"open,omitempty"`
	High  float64     `json:"high,omitempty"`
	Low   float64     `json:"low,omitempty"`
	Close float64     `json:"close,omitempty"`
	Exit  *bool       `json:"exit,omitempty"`
}

func (c Candle) IsSentinel() bool { return c.Exit != nil }

func ExitCandle() Candle {
	t := true
	return Candle{Exit: &t}
}
