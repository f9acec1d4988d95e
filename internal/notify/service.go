package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Config controls where and how fast summaries are sent.
type Config struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	RatePerSec int
	MaxLines   int
}

// Service sends run summaries. A disabled Service is a no-op.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notify"))}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.MaxLines == 0 {
		cfg.MaxLines = 15
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetSender replaces the transport, e.g. once notifications are first enabled.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// NotifyRun sends the summary of one run, split into as many messages as
// Telegram's size limit requires.
func (s *Service) NotifyRun(ctx context.Context, runID string, res *plan.Result) error {
	s.mu.Lock()
	cfg, sender, limiter := s.cfg, s.sender, s.limiter
	s.mu.Unlock()
	if !cfg.Enabled || sender == nil {
		return nil
	}

	text := FormatSummary(runID, res, cfg.MaxLines)
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := sender.SendText(ctx, cfg.ChatID, cfg.ThreadID, chunk); err != nil {
			s.log.Warn("summary send failed", logx.Int64("chat_id", cfg.ChatID), logx.Err(err))
			return err
		}
	}
	s.log.Debug("summary sent", logx.String("run", runID), logx.Int("bytes", len(text)))
	return nil
}

// telegramSender sends through the Bot API.
type telegramSender struct {
	bot *tele.Bot
}

// NewTelegramSender creates a send-only bot client. The bot never polls for
// updates.
func NewTelegramSender(token string, timeout time.Duration) (Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b}, nil
}

func (t *telegramSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
		ThreadID:              threadID,
	})
	return err
}
