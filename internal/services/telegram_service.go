package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const telegramTimeout = 10 * time.Second

// TelegramService sends operator alerts to the admin chat.
type TelegramService struct {
	apiBase     string
	botToken    string
	adminChatID string
	log         *zap.SugaredLogger
}

// NewTelegramService creates a new TelegramService. An empty token or chat disables sending.
func NewTelegramService(apiBase, botToken, adminChatID string, log *zap.SugaredLogger) *TelegramService {
	return &TelegramService{
		apiBase:     strings.TrimRight(apiBase, "/"),
		botToken:    botToken,
		adminChatID: adminChatID,
		log:         log,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Enabled reports whether alerts will actually be delivered.
func (s *TelegramService) Enabled() bool {
	return s.botToken != "" && s.adminChatID != ""
}

// Alert sends an HTML-formatted message to the admin chat.
func (s *TelegramService) Alert(ctx context.Context, text string) error {
	if !s.Enabled() {
		s.log.Debugw("telegram alert skipped, not configured")
		return nil
	}

	timeout := telegramTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	agent := fiber.Post(url).
		Timeout(timeout).
		JSON(telegramMessage{ChatID: s.adminChatID, Text: text, ParseMode: "HTML"})

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("telegram send: %w", errs[0])
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("telegram returned status %d", code)
	}
	return nil
}

// LedgerGapAlert describes a decision whose account update committed but whose
// ledger row was not written.
type LedgerGapAlert struct {
	UID      string
	Action   string
	Verified bool
	Note     string
	Cause    string
	At       time.Time
}

// FormatLedgerGapAlert renders the reconciliation message for operators.
func FormatLedgerGapAlert(a LedgerGapAlert) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Verification ledger gap</b>\n\n")
	fmt.Fprintf(&b, "<b>User:</b> <code>%s</code>\n", html.EscapeString(a.UID))
	fmt.Fprintf(&b, "<b>Action:</b> %s (verified=%t)\n", html.EscapeString(a.Action), a.Verified)
	fmt.Fprintf(&b, "<b>Note:</b> %s\n", html.EscapeString(a.Note))
	fmt.Fprintf(&b, "<b>Cause:</b> %s\n", html.EscapeString(a.Cause))
	fmt.Fprintf(&b, "<b>At:</b> %s\n\n", a.At.UTC().Format(time.RFC3339))
	b.WriteString("The account was updated but no history row exists. Append it manually.")
	return b.String()
}
