package sessions

import "qbot/internal/models"

// BotState: состояние одной сессии. Им владеет ровно один воркер, поэтому без мьютекса.
type BotState struct {
	LastClose float64
	HasLast   bool
	Position  *Position
	Balance   float64 // реализованный equity: старт + закрытые PnL
	Equity    float64 // Balance + нереализованный PnL открытой позиции
	Step      int
}

func NewBotState(initial float64) BotState {
	return BotState{Balance: initial, Equity: initial}
}

func (s *BotState) Sign() int {
	if s.Position == nil {
		return 0
	}
	return int(s.Position.Direction)
}

func (s *BotState) Flat() bool { return s.Position == nil }

// Mark переоценивает equity по цене.
func (s *BotState) Mark(price float64) {
	s.Equity = s.Balance
	if s.Position != nil {
		s.Equity += s.Position.PnL(price)
	}
}

// Transition: итог применения действия. Открытие и закрытие на одной свече не бывает.
type Transition struct {
	Opened *Position
	Closed *Position
	PnL    float64
}

// Apply: автомат FLAT/LONG/SHORT. Из FLAT открывает по BUY/SELL,
// из позиции закрывает по SL, TP или встречному действию.
func (s *BotState) Apply(a models.Action, price float64, rules RiskRules, newID func() string) Transition {
	if s.Position == nil {
		var dir Direction
		switch a {
		case models.ActionBuy:
			dir = Long
		case models.ActionSell:
			dir = Short
		case models.ActionHold:
			return Transition{}
		default:
			return Transition{}
		}
		s.Position = OpenPosition(newID(), dir, price, rules)
		return Transition{Opened: s.Position}
	}

	pos := s.Position
	if !pos.HitStopLoss(price) && !pos.HitTakeProfit(price) && !pos.ClosedBy(a) {
		return Transition{}
	}
	pnl := pos.PnL(price)
	s.Balance += pnl
	s.Position = nil
	return Transition{Closed: pos, PnL: pnl}
}
