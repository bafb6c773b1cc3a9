package models

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Encode сериализует сообщение для брокера.
func Encode(v any) (string, error) {
	return sonic.MarshalString(v)
}

func DecodeCandle(raw string) (c Candle, err error) {
	err = sonic.UnmarshalString(raw, &c)
	return c, err
}

func DecodeOrder(raw string) (o Order, err error) {
	err = sonic.UnmarshalString(raw, &o)
	return o, err
}

func DecodeTrade(raw string) (t Trade, err error) {
	err = sonic.UnmarshalString(raw, &t)
	return t, err
}

func DecodeTradeEvent(raw string) (ev TradeEvent, err error) {
	if err = sonic.UnmarshalString(raw, &ev); err != nil {
		return ev, err
	}
	if ev.Type != TradeOpen && ev.Type != TradeClosed {
		return ev, fmt.Errorf("unknown trade event type %q", ev.Type)
	}
	if ev.Data.ID == "" {
		return ev, fmt.Errorf("trade event without id")
	}
	return ev, nil
}

// MessageTypeOf вытаскивает поле type; для не-JSON вернёт ошибку.
func MessageTypeOf(raw string) (MessageType, error) {
	var e Envelope
	if err := sonic.UnmarshalString(raw, &e); err != nil {
		return "", err
	}
	return e.Type, nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}
