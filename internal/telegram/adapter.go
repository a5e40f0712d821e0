// Package telegram bridges Telegram chats to workspace sessions. Plain text
// becomes a conversation intent; decision forms are rendered as numbered
// options and resolved by replying with the option number.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/urbanflow/internal/orchestrator"
	"github.com/user/urbanflow/internal/simulation"
	"github.com/user/urbanflow/internal/types"
	"github.com/user/urbanflow/internal/workspace"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the workspace registry.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	registry *workspace.Registry
	queue    *workspace.Queue

	mu      sync.Mutex
	pending map[int64]types.MessageID // chat id -> unresolved form
}

// New creates a Telegram adapter.
func New(token string, registry *workspace.Registry, queue *workspace.Queue) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:      bot,
		registry: registry,
		queue:    queue,
		pending:  make(map[int64]types.MessageID),
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	sess, err := a.resolve(ctx, msg)
	if err != nil {
		slog.Error("resolve telegram session failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
		return
	}

	// A bare number while a form is open resolves that form.
	if formID, ok := a.pendingForm(chatID); ok {
		if choice, err := strconv.Atoi(strings.TrimSpace(msg.Text)); err == nil {
			a.resolveForm(ctx, chatID, sess, formID, choice)
			return
		}
	}

	var reply types.Message
	var intentErr error
	err = a.queue.Do(sess.ID, func(ctx context.Context) {
		reply, intentErr = sess.OnUserText(ctx, msg.Text)
	})
	if err != nil || intentErr != nil {
		slog.Error("telegram intent failed", "chat_id", chatID, "error", err, "intent_error", intentErr)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
		return
	}

	if reply.Kind == types.MessageForm && reply.Form != nil {
		a.setPendingForm(chatID, reply.ID)
		a.sendResponse(chatID, renderForm(reply.Form))
		return
	}
	a.sendResponse(chatID, reply.Text)
}

func (a *Adapter) resolveForm(ctx context.Context, chatID int64, sess *orchestrator.Session, formID types.MessageID, choice int) {
	formMsg, ok := sess.Log().Get(formID)
	if !ok || formMsg.Form == nil {
		a.clearPendingForm(chatID)
		a.sendResponse(chatID, "That form is no longer available.")
		return
	}
	if choice < 1 || choice > len(formMsg.Form.Options) {
		a.sendResponse(chatID, fmt.Sprintf("Please reply with a number between 1 and %d.", len(formMsg.Form.Options)))
		return
	}
	opt := formMsg.Form.Options[choice-1]

	var intentErr error
	err := a.queue.Do(sess.ID, func(ctx context.Context) {
		intentErr = sess.OnFormResolved(ctx, formID, opt.ID)
	})
	if err != nil {
		slog.Error("telegram form intent failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
		return
	}
	if intentErr != nil {
		if intentErr == simulation.ErrAlreadyRunning {
			a.sendResponse(chatID, "A simulation is already running. Use /status to check on it.")
			return
		}
		a.sendResponse(chatID, "Sorry, that choice could not be applied.")
		return
	}

	a.clearPendingForm(chatID)
	a.sendResponse(chatID, fmt.Sprintf("%s selected. Simulation started. Use /status to follow progress.", opt.Label))
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm your urban microclimate assistant. Describe the study you want to run to get started.")

	case "status":
		sess, err := a.resolve(ctx, msg)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		a.sendResponse(chatID, statusText(sess))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /status")
	}
}

func statusText(sess *orchestrator.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nMessages: %d\n", sess.ID, sess.Log().Len())
	if step, ok := sess.Workflow().Current(); ok {
		fmt.Fprintf(&b, "Stage: %s\n", step.Label)
	}
	snap := sess.Simulation()
	switch snap.State {
	case simulation.StateNotStarted:
		b.WriteString("Simulation: not started")
	case simulation.StateCompleted:
		b.WriteString("Simulation: completed")
		if snap.Results != nil {
			fmt.Fprintf(&b, " (mean PET %.1f, peak PET %.1f)", snap.Results.MeanPET, snap.Results.MaxPET)
		}
	case simulation.StateFailed:
		b.WriteString("Simulation: failed")
		if snap.Message != "" {
			fmt.Fprintf(&b, " (%s)", snap.Message)
		}
	default:
		fmt.Fprintf(&b, "Simulation: %s (%d%%)", snap.State, snap.Progress)
	}
	return b.String()
}

// renderForm formats a decision form as a numbered list the user can answer
// with a plain number.
func renderForm(form *types.FormRequest) string {
	var b strings.Builder
	b.WriteString("Please choose an option by replying with its number:\n")
	for i, opt := range form.Options {
		fmt.Fprintf(&b, "%d. %s", i+1, opt.Label)
		if opt.ETAHint != "" {
			fmt.Fprintf(&b, " (%s)", opt.ETAHint)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Adapter) resolve(ctx context.Context, msg *tgbotapi.Message) (*orchestrator.Session, error) {
	return a.registry.ResolveOrCreate(ctx, buildSessionKey(msg.From.ID, msg.Chat.ID), false)
}

func (a *Adapter) pendingForm(chatID int64) (types.MessageID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.pending[chatID]
	return id, ok
}

func (a *Adapter) setPendingForm(chatID int64, id types.MessageID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[chatID] = id
}

func (a *Adapter) clearPendingForm(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, chatID)
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send telegram message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
