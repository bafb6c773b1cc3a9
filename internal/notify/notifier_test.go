package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatSessions(t *testing.T) {
	assert.Equal(t, "📭 Активных сессий нет", FormatSessions(nil))
	assert.Equal(t, "📊 Активные сессии (2):\n- a\n- b\n", FormatSessions([]string{"a", "b"}))
}

func TestStdout_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewStdout(zap.New(core))

	s.Sendf("session %s stopped: %s", "s1", "equity_min")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "[OPS] session s1 stopped: equity_min", entries[0].Message)
	}
}

func TestTelegram_NilSafe(t *testing.T) {
	var tg *Telegram
	tg.Send("x")
	tg.Stop()
	assert.NoError(t, tg.Start(context.Background()))
}
