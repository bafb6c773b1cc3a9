package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"qbot/internal/runner/chart"
)

const dateLayout = "2006-01-02"

var (
	ErrBadSymbol = errors.New("stocks: invalid symbol")

	// имя таблицы подставляется в запрос, поэтому только идентификатор
	symbolRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,31}$`)
)

// Series: исторические ряды в sqlite: одна таблица на тикер,
// колонки date ('YYYY-MM-DD'), open, high, low, close.
type Series struct {
	db *sql.DB
}

func NewSeries(db *sql.DB) *Series {
	return &Series{db: db}
}

func ValidSymbol(symbol string) bool { return symbolRe.MatchString(symbol) }

// Each отдаёт строки в порядке хранения. Ошибка fn прерывает чтение.
func (s *Series) Each(ctx context.Context, symbol string, fn func(chart.Bar) error) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Series.Each(%s): %w", symbol, err)
		}
	}()
	if !ValidSymbol(symbol) {
		return ErrBadSymbol
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT date, open, high, low, close FROM "%s" ORDER BY rowid`, symbol))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			date string
			bar  chart.Bar
		)
		if err = rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close); err != nil {
			return err
		}
		bar.Date, err = time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return err
		}
		if err = fn(bar); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Series) Close() error { return s.db.Close() }
