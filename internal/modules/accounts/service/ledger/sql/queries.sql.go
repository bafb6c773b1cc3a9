package sql

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getAccount = `-- name: GetAccount :one
SELECT id, balance, currency
FROM accounts
WHERE id = $1
`

func (q *Queries) GetAccount(ctx context.Context, db DBTX, id uuid.UUID) (Account, error) {
	row := db.QueryRow(ctx, getAccount, id)
	var i Account
	err := row.Scan(&i.ID, &i.Balance, &i.Currency)
	return i, err
}

const getAccountForUpdate = `-- name: GetAccountForUpdate :one
SELECT id, balance, currency
FROM accounts
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetAccountForUpdate(ctx context.Context, db DBTX, id uuid.UUID) (Account, error) {
	row := db.QueryRow(ctx, getAccountForUpdate, id)
	var i Account
	err := row.Scan(&i.ID, &i.Balance, &i.Currency)
	return i, err
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (id, balance, currency)
VALUES ($1, $2, $3)
RETURNING id, balance, currency
`

type CreateAccountParams struct {
	ID       uuid.UUID
	Balance  float64
	Currency string
}

func (q *Queries) CreateAccount(ctx context.Context, db DBTX, arg *CreateAccountParams) (Account, error) {
	row := db.QueryRow(ctx, createAccount, arg.ID, arg.Balance, arg.Currency)
	var i Account
	err := row.Scan(&i.ID, &i.Balance, &i.Currency)
	return i, err
}

const setBalance = `-- name: SetBalance :exec
UPDATE accounts
SET balance = $2
WHERE id = $1
`

type SetBalanceParams struct {
	ID      uuid.UUID
	Balance float64
}

func (q *Queries) SetBalance(ctx context.Context, db DBTX, arg *SetBalanceParams) error {
	_, err := db.Exec(ctx, setBalance, arg.ID, arg.Balance)
	return err
}

const setCurrency = `-- name: SetCurrency :one
UPDATE accounts
SET currency = $2
WHERE id = $1
RETURNING id, balance, currency
`

type SetCurrencyParams struct {
	ID       uuid.UUID
	Currency string
}

func (q *Queries) SetCurrency(ctx context.Context, db DBTX, arg *SetCurrencyParams) (Account, error) {
	row := db.QueryRow(ctx, setCurrency, arg.ID, arg.Currency)
	var i Account
	err := row.Scan(&i.ID, &i.Balance, &i.Currency)
	return i, err
}

const listStocks = `-- name: ListStocks :many
SELECT id, name, symbol
FROM stocks
ORDER BY id
LIMIT $1
`

func (q *Queries) ListStocks(ctx context.Context, db DBTX, limit int32) ([]Stock, error) {
	rows, err := db.Query(ctx, listStocks, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Stock
	for rows.Next() {
		var i Stock
		if err := rows.Scan(&i.ID, &i.Name, &i.Symbol); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getStockBySymbol = `-- name: GetStockBySymbol :one
SELECT id, name, symbol
FROM stocks
WHERE symbol = $1
`

func (q *Queries) GetStockBySymbol(ctx context.Context, db DBTX, symbol string) (Stock, error) {
	row := db.QueryRow(ctx, getStockBySymbol, symbol)
	var i Stock
	err := row.Scan(&i.ID, &i.Name, &i.Symbol)
	return i, err
}

const upsertTrade = `-- name: UpsertTrade :exec
INSERT INTO trades (id, account_id, instrument_id, order_id, order_type, status, amount, price, pnl, equity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE
SET status     = EXCLUDED.status,
    pnl        = EXCLUDED.pnl,
    equity     = EXCLUDED.equity,
    updated_at = EXCLUDED.updated_at
`

type UpsertTradeParams struct {
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

func (q *Queries) UpsertTrade(ctx context.Context, db DBTX, arg *UpsertTradeParams) error {
	_, err := db.Exec(ctx, upsertTrade,
		arg.ID,
		arg.AccountID,
		arg.InstrumentID,
		arg.OrderID,
		arg.OrderType,
		arg.Status,
		arg.Amount,
		arg.Price,
		arg.Pnl,
		arg.Equity,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const listClosedTrades = `-- name: ListClosedTrades :many
SELECT id, account_id, instrument_id, order_id, order_type, status, amount, price, pnl, equity, created_at, updated_at
FROM trades
WHERE account_id = $1
  AND order_id = $2
  AND status = 'CLOSED'
ORDER BY created_at
`

type ListClosedTradesParams struct {
	AccountID uuid.UUID
	OrderID   string
}

func (q *Queries) ListClosedTrades(ctx context.Context, db DBTX, arg *ListClosedTradesParams) ([]Trade, error) {
	rows, err := db.Query(ctx, listClosedTrades, arg.AccountID, arg.OrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Trade
	for rows.Next() {
		var i Trade
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.InstrumentID,
			&i.OrderID,
			&i.OrderType,
			&i.Status,
			&i.Amount,
			&i.Price,
			&i.Pnl,
			&i.Equity,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
