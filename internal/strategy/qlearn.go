package strategy

import (
	"math"
	"math/rand"

	"qbot/internal/models"
)

// QValues: строка Q-таблицы, индекс = models.Action.
type QValues [models.NumActions]float64

// QLearning: табличный Q-learning. Таблица живёт ровно столько, сколько агент,
// и принадлежит одному воркеру сессии: без локов.
type QLearning struct {
	cfg Config
	rnd *rand.Rand
	q   map[State]QValues
}

func NewQLearning(cfg Config, rnd *rand.Rand) *QLearning {
	return &QLearning{
		cfg: cfg,
		rnd: rnd,
		q:   make(map[State]QValues),
	}
}

// Discretize: чистая функция от цен и знака позиции.
func Discretize(binSizePct, lastClose, close float64, position int) State {
	change := 0.0
	if lastClose > 0 && close > 0 {
		change = (close - lastClose) / lastClose
	}
	bin := 0
	if w := binSizePct / 100.0; w > 0 {
		bin = int(math.Floor(change / w))
	}
	return State{Bin: bin, Position: clampSign(position)}
}

func clampSign(p int) int {
	switch {
	case p > 0:
		return 1
	case p < 0:
		return -1
	default:
		return 0
	}
}

func (a *QLearning) Discretize(lastClose, close float64, position int) State {
	return Discretize(a.cfg.PriceBinSize, lastClose, close, position)
}

// Ensure заводит нулевую строку для нового состояния. true — строка создана сейчас.
func (a *QLearning) Ensure(s State) bool {
	if _, ok := a.q[s]; ok {
		return false
	}
	a.q[s] = QValues{}
	return true
}

func (a *QLearning) Values(s State) (QValues, bool) {
	v, ok := a.q[s]
	return v, ok
}

func (a *QLearning) SetValue(s State, act models.Action, v float64) {
	a.Ensure(s)
	row := a.q[s]
	row[act] = v
	a.q[s] = row
}

// Len: число известных состояний.
func (a *QLearning) Len() int { return len(a.q) }

func (a *QLearning) SelectAction(s State) models.Action {
	a.Ensure(s)
	if a.rnd.Float64() < a.cfg.Epsilon {
		return models.Actions[a.rnd.Intn(models.NumActions)]
	}
	return greedy(a.q[s])
}

// greedy: argmax по фиксированному порядку models.Actions, ничья уходит первому.
func greedy(row QValues) models.Action {
	best := models.Actions[0]
	for _, act := range models.Actions[1:] {
		if row[act] > row[best] {
			best = act
		}
	}
	return best
}

func maxValue(row QValues) float64 {
	m := row[0]
	for _, v := range row[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (a *QLearning) Update(s State, act models.Action, reward float64, next *State) {
	a.Ensure(s)
	target := reward
	if next != nil {
		a.Ensure(*next)
		target = reward + a.cfg.Gamma*maxValue(a.q[*next])
	}
	row := a.q[s]
	row[act] += a.cfg.Alpha * (target - row[act])
	a.q[s] = row
}
