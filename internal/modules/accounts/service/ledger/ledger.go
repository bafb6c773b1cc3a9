package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"qbot/internal/models"
	"qbot/internal/modules/accounts/service/ledger/sql"
	"qbot/pkg/db"
)

var (
	ErrNotFound          = errors.New("ledger: not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Ledger implement db store
type Ledger struct {
	sql *sql.Queries
}

// New instance
func New() *Ledger {
	return &Ledger{
		sql: sql.New(),
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func toAccount(a sql.Account) *models.Account {
	return &models.Account{ID: a.ID.String(), Balance: a.Balance, Currency: a.Currency}
}

func (l *Ledger) GetAccount(ctx context.Context, tx db.Transaction, id uuid.UUID) (acc *models.Account, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.GetAccount: %w", err)
		}
	}()
	resp, err := l.sql.GetAccount(ctx, tx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return toAccount(resp), nil
}

func (l *Ledger) CreateAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance float64, currency string) (acc *models.Account, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.CreateAccount: %w", err)
		}
	}()
	resp, err := l.sql.CreateAccount(ctx, tx, &sql.CreateAccountParams{
		ID:       id,
		Balance:  balance,
		Currency: currency,
	})
	if err != nil {
		return nil, err
	}
	return toAccount(resp), nil
}

func (l *Ledger) SetCurrency(ctx context.Context, tx pgx.Tx, id uuid.UUID, currency string) (acc *models.Account, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.SetCurrency: %w", err)
		}
	}()
	resp, err := l.sql.SetCurrency(ctx, tx, &sql.SetCurrencyParams{
		ID:       id,
		Currency: currency,
	})
	if err != nil {
		return nil, notFound(err)
	}
	return toAccount(resp), nil
}

// Debit списывает amount под блокировкой строки и возвращает новый баланс.
func (l *Ledger) Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount float64) (balance float64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.Debit: %w", err)
		}
	}()
	resp, err := l.sql.GetAccountForUpdate(ctx, tx, id)
	if err != nil {
		return 0, notFound(err)
	}
	balance, err = ApplyDebit(resp.Balance, amount)
	if err != nil {
		return 0, err
	}
	err = l.sql.SetBalance(ctx, tx, &sql.SetBalanceParams{
		ID:      id,
		Balance: balance,
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ApplyDebit считает в decimal, чтобы 0.1+0.2 не копились в балансе.
func ApplyDebit(balance, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %v", amount)
	}
	b := decimal.NewFromFloat(balance)
	a := decimal.NewFromFloat(amount)
	if b.LessThan(a) {
		return 0, ErrInsufficientFunds
	}
	return b.Sub(a).InexactFloat64(), nil
}

func (l *Ledger) ListStocks(ctx context.Context, tx db.Transaction, limit int32) (out []models.Stock, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.ListStocks: %w", err)
		}
	}()
	resp, err := l.sql.ListStocks(ctx, tx, limit)
	if err != nil {
		return nil, err
	}
	out = make([]models.Stock, 0, len(resp))
	for _, s := range resp {
		out = append(out, models.Stock{ID: s.ID, Name: s.Name, Symbol: s.Symbol})
	}
	return out, nil
}

func (l *Ledger) StockBySymbol(ctx context.Context, tx db.Transaction, symbol string) (st *models.Stock, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.StockBySymbol: %w", err)
		}
	}()
	resp, err := l.sql.GetStockBySymbol(ctx, tx, symbol)
	if err != nil {
		return nil, notFound(err)
	}
	return &models.Stock{ID: resp.ID, Name: resp.Name, Symbol: resp.Symbol}, nil
}

// SaveTrade: upsert: повторная запись той же сделки обновляет статус и pnl.
func (l *Ledger) SaveTrade(ctx context.Context, tx pgx.Tx, t models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.SaveTrade: %w", err)
		}
	}()
	params, err := upsertParams(t)
	if err != nil {
		return err
	}
	return l.sql.UpsertTrade(ctx, tx, params)
}

func upsertParams(t models.Trade) (*sql.UpsertTradeParams, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return nil, fmt.Errorf("trade id: %w", err)
	}
	acc, err := uuid.Parse(t.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}
	return &sql.UpsertTradeParams{
		ID:           id,
		AccountID:    acc,
		InstrumentID: t.InstrumentID,
		OrderID:      t.OrderID,
		OrderType:    string(t.OrderType),
		Status:       string(t.Status),
		Amount:       t.Amount,
		Price:        t.Price,
		Pnl:          t.PnL,
		Equity:       t.Equity,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}, nil
}

func (l *Ledger) ListClosedTrades(ctx context.Context, tx db.Transaction, accountID uuid.UUID, orderID string) (out []models.Trade, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Ledger.ListClosedTrades: %w", err)
		}
	}()
	resp, err := l.sql.ListClosedTrades(ctx, tx, &sql.ListClosedTradesParams{
		AccountID: accountID,
		OrderID:   orderID,
	})
	if err != nil {
		return nil, err
	}
	out = make([]models.Trade, 0, len(resp))
	for _, r := range resp {
		out = append(out, models.Trade{
			ID:           r.ID.String(),
			AccountID:    r.AccountID.String(),
			InstrumentID: r.InstrumentID,
			OrderID:      r.OrderID,
			OrderType:    models.OrderType(r.OrderType),
			Status:       models.TradeStatus(r.Status),
			Amount:       r.Amount,
			Price:        r.Price,
			PnL:          r.Pnl,
			Equity:       r.Equity,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return out, nil
}
