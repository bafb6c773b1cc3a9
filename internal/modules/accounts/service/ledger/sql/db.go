package sql

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New() *Queries {
	return &Queries{}
}

type Queries struct {
}

type Account struct {
	ID       uuid.UUID
	Balance  float64
	Currency string
}

type Stock struct {
	ID     int64
	Name   string
	Symbol string
}

type Trade struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	InstrumentID int64
	OrderID      string
	OrderType    string
	Status       string
	Amount       float64
	Price        float64
	Pnl          float64
	Equity       float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
