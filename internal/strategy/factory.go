package strategy

import (
	"math/rand"
	"time"
)

// NewAgent создаёт агента для новой сессии. Seed == 0 — случайный,
// иначе воспроизводимый (удобно для отладки конкретной сессии).
func NewAgent(cfg Config) Agent {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewQLearning(cfg, rand.New(rand.NewSource(seed)))
}
