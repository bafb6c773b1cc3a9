package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier: ops-сообщения о сессиях.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Sessions: то, чем можно управлять из чата.
type Sessions interface {
	Active() []string
	Cancel(ctx context.Context, sessionID string) error
}

// Telegram: пассивный нотифайер + команды /sessions и /stop <id>.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	mu       sync.Mutex
	sessions Sessions
	stop     context.CancelFunc
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, log: log}, nil
}

// Attach подключает управление сессиями (после сборки менеджера).
func (t *Telegram) Attach(s Sessions) {
	t.mu.Lock()
	t.sessions = s
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("[TG] send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) handleCommand(ctx context.Context, cmd, args string) {
	t.mu.Lock()
	s := t.sessions
	t.mu.Unlock()
	if s == nil {
		t.Send("❗️ Менеджер сессий не подключён")
		return
	}

	switch cmd {
	case "sessions":
		t.Send(FormatSessions(s.Active()))
	case "stop":
		sid := strings.TrimSpace(args)
		if sid == "" {
			t.Send("Использование: /stop <session_id>")
			return
		}
		if err := s.Cancel(ctx, sid); err != nil {
			t.Sendf("❗️ [%s] не удалось остановить: %v", sid, err)
			return
		}
		t.Sendf("⛔️ [%s] остановка запрошена", sid)
	}
}

// FormatSessions: текст ответа на /sessions.
func FormatSessions(ids []string) string {
	if len(ids) == 0 {
		return "📭 Активных сессий нет"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Активные сессии (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	return b.String()
}

// Start: long-polling сообщений из ops-чата.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t.stop = cancel

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {
					go t.handleCommand(ctx, upd.Message.Command(), upd.Message.CommandArguments())
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	if t == nil || t.bot == nil {
		return
	}
	if t.stop != nil {
		t.stop()
	}
	t.bot.StopReceivingUpdates()
}

// Stdout: заглушка без токена: всё в лог.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout { return &Stdout{log: log} }

func (s *Stdout) Send(msg string) { s.log.Info("[OPS] " + msg) }

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
