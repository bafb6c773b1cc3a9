package sessions

import "qbot/internal/models"

// Direction: знак позиции: +1 long, -1 short.
type Direction int

const (
	Short Direction = -1
	Long  Direction = 1
)

func (d Direction) OrderType() models.OrderType {
	if d == Short {
		return models.OrderSell
	}
	return models.OrderBuy
}

// RiskRules: уровни SL/TP в долях от цены входа.
type RiskRules struct {
	StopLossPct   float64
	TakeProfitPct float64
}

type Position struct {
	ID         string
	Direction  Direction
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

func OpenPosition(id string, dir Direction, entry float64, r RiskRules) *Position {
	p := &Position{ID: id, Direction: dir, Entry: entry}
	switch dir {
	case Long:
		p.StopLoss = entry * (1 - r.StopLossPct)
		p.TakeProfit = entry * (1 + r.TakeProfitPct)
	case Short:
		p.StopLoss = entry * (1 + r.StopLossPct)
		p.TakeProfit = entry * (1 - r.TakeProfitPct)
	}
	return p
}

// PnL на единицу объёма при цене price.
func (p *Position) PnL(price float64) float64 {
	return (price - p.Entry) * float64(p.Direction)
}

func (p *Position) HitStopLoss(price float64) bool {
	if p.Direction == Long {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p *Position) HitTakeProfit(price float64) bool {
	if p.Direction == Long {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// ClosedBy: BUY закрывает short, SELL закрывает long.
func (p *Position) ClosedBy(a models.Action) bool {
	switch a {
	case models.ActionBuy:
		return p.Direction == Short
	case models.ActionSell:
		return p.Direction == Long
	case models.ActionHold:
		return false
	}
	return false
}
