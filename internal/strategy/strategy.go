package strategy

import (
	"fmt"

	"qbot/internal/models"
)

// State: дискретное состояние: корзина изменения цены + знак позиции (-1/0/1).
type State struct {
	Bin      int
	Position int
}

// Agent: то, что дергает воркер сессии на каждой свече.
type Agent interface {
	Discretize(lastClose, close float64, position int) State
	SelectAction(s State) models.Action
	// Update: next == nil — терминальный переход, цель = reward.
	Update(s State, a models.Action, reward float64, next *State)
}

// Config: параметры агента и риск-правил позиции.
type Config struct {
	Alpha         float64 `mapstructure:"alpha"`          // learning rate
	Gamma         float64 `mapstructure:"gamma"`          // discount
	Epsilon       float64 `mapstructure:"epsilon"`        // exploration
	PriceBinSize  float64 `mapstructure:"price_bin_size"` // ширина корзины, в процентных пунктах
	StopLossPct   float64 `mapstructure:"stop_loss_pct"`  // доля, 0.01 => 1%
	TakeProfitPct float64 `mapstructure:"take_profit_pct"`
	Seed          int64   `mapstructure:"seed"` // 0 => от времени
}

func DefaultConfig() Config {
	return Config{
		Alpha:         0.1,
		Gamma:         0.95,
		Epsilon:       0.1,
		PriceBinSize:  0.25,
		StopLossPct:   0.01,
		TakeProfitPct: 0.02,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Alpha <= 0 || c.Alpha > 1:
		return fmt.Errorf("strategy: alpha must be in (0,1], got %v", c.Alpha)
	case c.Gamma < 0 || c.Gamma > 1:
		return fmt.Errorf("strategy: gamma must be in [0,1], got %v", c.Gamma)
	case c.Epsilon < 0 || c.Epsilon > 1:
		return fmt.Errorf("strategy: epsilon must be in [0,1], got %v", c.Epsilon)
	case c.StopLossPct <= 0 || c.StopLossPct >= 1:
		return fmt.Errorf("strategy: stop_loss_pct must be in (0,1), got %v", c.StopLossPct)
	case c.TakeProfitPct <= 0:
		return fmt.Errorf("strategy: take_profit_pct must be > 0, got %v", c.TakeProfitPct)
	}
	return nil
}
