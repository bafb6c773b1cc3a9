package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbot/internal/models"
)

func newTestAgent(cfg Config, seed int64) *QLearning {
	return NewQLearning(cfg, rand.New(rand.NewSource(seed)))
}

func TestDiscretize_Monotonic(t *testing.T) {
	const last = 100.0
	prev := Discretize(0.25, last, 90, 0).Bin
	for c := 90.0; c <= 110; c += 0.05 {
		s := Discretize(0.25, last, c, 0)
		assert.GreaterOrEqual(t, s.Bin, prev, "close=%v", c)
		prev = s.Bin
	}
}

func TestDiscretize_Edges(t *testing.T) {
	assert.Equal(t, State{Bin: 0, Position: 0}, Discretize(0.25, 100, 100, 0))
	assert.Equal(t, State{Bin: -1, Position: 1}, Discretize(0.25, 100, 99.9, 1))
	assert.Equal(t, State{Bin: 0, Position: -1}, Discretize(0.25, 100, 100.1, -7))

	// нет цены — нулевое изменение
	assert.Equal(t, 0, Discretize(0.25, 0, 100, 0).Bin)
	// нулевая ширина корзины не делит на ноль
	assert.Equal(t, 0, Discretize(0, 100, 150, 0).Bin)
}

func TestSelectAction_GreedyWhenNoExploration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	a := newTestAgent(cfg, 1)
	s := State{Bin: 2, Position: 0}

	// нулевая строка: ничья, выигрывает BUY
	for i := 0; i < 50; i++ {
		require.Equal(t, models.ActionBuy, a.SelectAction(s))
	}

	a.SetValue(s, models.ActionHold, 0.5)
	for i := 0; i < 50; i++ {
		require.Equal(t, models.ActionHold, a.SelectAction(s))
	}

	// ничья SELL/HOLD — SELL раньше по порядку
	a.SetValue(s, models.ActionSell, 0.5)
	assert.Equal(t, models.ActionSell, a.SelectAction(s))
}

func TestSelectAction_UniformWhenAlwaysExploring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 1
	a := newTestAgent(cfg, 42)
	s := State{}
	a.SetValue(s, models.ActionSell, 100)

	const n = 30000
	var counts [models.NumActions]int
	for i := 0; i < n; i++ {
		counts[a.SelectAction(s)]++
	}
	for act, c := range counts {
		frac := float64(c) / n
		assert.InDelta(t, 1.0/3, frac, 0.03, "action %s", models.Action(act))
	}
}

func TestEnsure_ZeroInit(t *testing.T) {
	a := newTestAgent(DefaultConfig(), 1)
	s := State{Bin: -3, Position: 1}

	_, ok := a.Values(s)
	assert.False(t, ok)

	assert.True(t, a.Ensure(s))
	assert.False(t, a.Ensure(s))

	row, ok := a.Values(s)
	require.True(t, ok)
	assert.Equal(t, QValues{}, row)
	assert.Equal(t, 1, a.Len())
}

func TestUpdate_Terminal(t *testing.T) {
	cfg := DefaultConfig()
	a := newTestAgent(cfg, 1)
	s := State{Bin: 1}

	a.Update(s, models.ActionBuy, 10, nil)
	row, _ := a.Values(s)
	assert.InDelta(t, cfg.Alpha*10, row[models.ActionBuy], 1e-12)
	assert.Equal(t, 0.0, row[models.ActionSell])
	assert.Equal(t, 0.0, row[models.ActionHold])
}

func TestUpdate_Bootstrap(t *testing.T) {
	cfg := DefaultConfig()
	a := newTestAgent(cfg, 1)
	s, next := State{Bin: 0}, State{Bin: 1, Position: 1}
	a.SetValue(next, models.ActionHold, 4)
	a.SetValue(next, models.ActionSell, -1)

	a.Update(s, models.ActionBuy, 1, &next)

	row, _ := a.Values(s)
	want := cfg.Alpha * (1 + cfg.Gamma*4)
	assert.InDelta(t, want, row[models.ActionBuy], 1e-12)
}

func TestUpdate_FixedPoint(t *testing.T) {
	a := newTestAgent(DefaultConfig(), 1)
	s := State{Bin: 5, Position: -1}
	a.SetValue(s, models.ActionSell, 3.25)

	for i := 0; i < 10; i++ {
		a.Update(s, models.ActionSell, 3.25, nil)
	}
	row, _ := a.Values(s)
	assert.Equal(t, 3.25, row[models.ActionSell])
}

func TestUpdate_CreatesNextState(t *testing.T) {
	a := newTestAgent(DefaultConfig(), 1)
	next := State{Bin: 9}
	a.Update(State{}, models.ActionHold, 0, &next)

	_, ok := a.Values(next)
	assert.True(t, ok)
	assert.Equal(t, 2, a.Len())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Alpha = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Epsilon = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.StopLossPct = 1
	assert.Error(t, bad.Validate())
}

func TestNewAgent_SeedIsReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 1
	cfg.Seed = 7
	a, b := NewAgent(cfg), NewAgent(cfg)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.SelectAction(State{}), b.SelectAction(State{}))
	}
}
