package models

// Account: счёт клиента; id совпадает с cookie session_id.
type Account struct {
	ID       string  `json:"-"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type Stock struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}
