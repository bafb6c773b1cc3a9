package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"qbot/internal/models"
	"qbot/pkg/broker"
)

const delBatch = 100

// Cleaner убирает ключи сессий, оставшиеся от прошлого процесса:
// их воркеров больше нет, а RUNNING-ордер иначе не перезапустить.
type Cleaner struct {
	broker broker.Broker
	log    *zap.Logger
}

func NewCleaner(b broker.Broker, log *zap.Logger) *Cleaner {
	return &Cleaner{broker: b, log: log}
}

func (c *Cleaner) Cleanup(ctx context.Context) (n int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Cleaner.Cleanup: %w", err)
		}
	}()
	keys, err := c.broker.Scan(ctx, models.KeyPrefix)
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(keys); start += delBatch {
		end := min(start+delBatch, len(keys))
		if err = c.broker.Del(ctx, keys[start:end]...); err != nil {
			return n, err
		}
		n += end - start
	}
	if n > 0 {
		c.log.Info("[BOOT] stale session keys removed", zap.Int("count", n))
	}
	return n, nil
}
