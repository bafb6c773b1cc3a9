package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbot/internal/runner/chart"
	"qbot/pkg/sqlite"
)

func seed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stocks.db")
	db, err := sqlite.Open(path, false)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`CREATE TABLE AAPL (date TEXT, open REAL, high REAL, low REAL, close REAL, volume INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO AAPL VALUES
		('2023-11-14', 100, 102, 99, 101, 10),
		('2023-11-15', 101, 103, 98, 99, 20),
		('2023-11-16', 99, 100, 97, 98.5, 30)`)
	require.NoError(t, err)
	return path
}

func TestSeries_Each(t *testing.T) {
	db, err := sqlite.Open(seed(t), true)
	require.NoError(t, err)
	s := NewSeries(db)
	defer func() { _ = s.Close() }()

	var bars []chart.Bar
	err = s.Each(context.Background(), "AAPL", func(b chart.Bar) error {
		bars = append(bars, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, []float64{101, 99, 98.5}, []float64{bars[0].Close, bars[1].Close, bars[2].Close})
	assert.Equal(t, 103.0, bars[1].High)
}

func TestSeries_StopsOnCallbackError(t *testing.T) {
	db, err := sqlite.Open(seed(t), true)
	require.NoError(t, err)
	s := NewSeries(db)
	defer func() { _ = s.Close() }()

	boom := errors.New("boom")
	n := 0
	err = s.Each(context.Background(), "AAPL", func(chart.Bar) error {
		n++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestSeries_Symbols(t *testing.T) {
	db, err := sqlite.Open(seed(t), true)
	require.NoError(t, err)
	s := NewSeries(db)
	defer func() { _ = s.Close() }()

	for _, bad := range []string{"", "AAPL; DROP TABLE AAPL", `a"b`, "1ABC"} {
		err := s.Each(context.Background(), bad, func(chart.Bar) error { return nil })
		assert.ErrorIs(t, err, ErrBadSymbol, bad)
	}

	err = s.Each(context.Background(), "MSFT", func(chart.Bar) error { return nil })
	assert.Error(t, err)

	assert.True(t, ValidSymbol("BRK_B"))
}

func TestOpen_MissingReadOnly(t *testing.T) {
	_, err := sqlite.Open(filepath.Join(t.TempDir(), "nope.db"), true)
	assert.Error(t, err)
}
