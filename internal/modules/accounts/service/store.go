package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"qbot/internal/models"
	"qbot/internal/modules/accounts/service/ledger"
	"qbot/pkg/db"
)

//go:embed schema.sql
var schema string

var (
	ErrNotFound          = ledger.ErrNotFound
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)

type Config struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	Currency       string  `mapstructure:"currency"`
	StocksLimit    int32   `mapstructure:"stocks_limit"`
}

// Store: счета, инструменты и история сделок в Postgres.
type Store struct {
	db     db.TxManager
	ledger *ledger.Ledger
	cfg    Config
	log    *zap.Logger
}

func NewStore(m db.TxManager, cfg Config, log *zap.Logger) *Store {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.StocksLimit <= 0 {
		cfg.StocksLimit = 5
	}
	return &Store{db: m, ledger: ledger.New(), cfg: cfg, log: log}
}

// Migrate: CREATE TABLE IF NOT EXISTS на старте.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Conn().Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("Store.Migrate: %w", err)
	}
	return nil
}

// GetOrCreate: невалидный или неизвестный id => новый счёт со стартовым балансом.
func (s *Store) GetOrCreate(ctx context.Context, sessionID string) (acc *models.Account, created bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Store.GetOrCreate: %w", err)
		}
	}()
	if id, perr := uuid.Parse(sessionID); perr == nil {
		acc, err = s.ledger.GetAccount(ctx, s.db.Conn(), id)
		if err == nil {
			return acc, false, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, false, err
		}
	}

	id := uuid.New()
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		acc, err = s.ledger.CreateAccount(ctxTx, tx, id, s.cfg.InitialBalance, s.cfg.Currency)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.log.Info("[ACCOUNTS] account created", zap.String("account", acc.ID))
	return acc, true, nil
}

func (s *Store) Get(ctx context.Context, accountID string) (*models.Account, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.ledger.GetAccount(ctx, s.db.Conn(), id)
}

func (s *Store) SetCurrency(ctx context.Context, accountID, currency string) (acc *models.Account, err error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		acc, err = s.ledger.SetCurrency(ctxTx, tx, id, currency)
		return err
	})
	return acc, err
}

// Debit списывает сумму сделки со счёта. Баланс меняет только HTTP-граница.
func (s *Store) Debit(ctx context.Context, accountID string, amount float64) (balance float64, err error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return 0, ErrNotFound
	}
	err = s.db.RunRepeatableRead(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		balance, err = s.ledger.Debit(ctxTx, tx, id, amount)
		return err
	})
	return balance, err
}

func (s *Store) ListStocks(ctx context.Context) ([]models.Stock, error) {
	return s.ledger.ListStocks(ctx, s.db.Conn(), s.cfg.StocksLimit)
}

func (s *Store) StockBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	return s.ledger.StockBySymbol(ctx, s.db.Conn(), symbol)
}

// SaveTrade: закрытые сделки от рекордера.
func (s *Store) SaveTrade(ctx context.Context, t models.Trade) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		return s.ledger.SaveTrade(ctxTx, tx, t)
	})
}

func (s *Store) ListClosedTrades(ctx context.Context, accountID, orderID string) ([]models.Trade, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, nil
	}
	return s.ledger.ListClosedTrades(ctx, s.db.Conn(), id, orderID)
}
