package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/coach"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/planner"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingQuiet    = "await_quiet_text"
	pendingLimit    = "await_limit_text"
	pendingInterval = "await_interval_text"
	pendingQuitDate = "await_quitdate_text"
)

// botAPI is the subset of *tgbotapi.BotAPI the package uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Coach is the planner surface the commands drive. *planner.Planner implements it.
type Coach interface {
	EvaluateAndNotify(ctx context.Context, force bool) planner.Result
	UpdateLimits(l planner.Limits) error
	Status() planner.Status
	Location() *time.Location
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
// Only the owner chat is served.
type Router struct {
	bot      botAPI
	log      *zap.Logger
	repo     store.Repo
	coach    Coach
	features *coach.FeatureStore
	ownerID  int64
	now      func() time.Time

	pending string // pending state of the owner chat
	mu      sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot botAPI, log *zap.Logger, repo store.Repo, c Coach, features *coach.FeatureStore, ownerID int64) *Router {
	return &Router{
		bot:      bot,
		log:      log,
		repo:     repo,
		coach:    c,
		features: features,
		ownerID:  ownerID,
		now:      time.Now,
	}
}

// setPending sets the pending state (non-persistent, in-memory).
func (r *Router) setPending(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = s
}

// getPending returns the current pending state.
func (r *Router) getPending() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pending
}

// clearPending clears the pending state.
func (r *Router) clearPending() {
	r.setPending("")
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	chat := upd.FromChat()
	if chat == nil {
		return
	}
	if chat.ID != r.ownerID {
		r.log.Debug("ignoring update from foreign chat", zap.Int64("chat_id", chat.ID))
		return
	}

	// Text messages
	if upd.Message != nil {
		msg := upd.Message
		if !msg.IsCommand() {
			// Free-form text used in "Custom" flows
			r.handleFreeForm(ctx, strings.TrimSpace(msg.Text))
			return
		}
		r.clearPending()
		args := strings.TrimSpace(msg.CommandArguments())

		switch msg.Command() {
		case "start":
			r.handleStart(ctx, msg.From)
		case "help":
			r.sendText(helpText)
		case "smoke":
			r.handleSmoke(ctx, args)
		case "undo":
			r.handleUndo(ctx)
		case "status":
			r.handleStatus(ctx)
		case "check":
			r.handleCheck(ctx)
		case "tip":
			r.handleTip(ctx)
		case "tags":
			r.handleTags(ctx)
		case "quitdate":
			r.handleQuitDate(ctx, args)
		case "reduce":
			r.handleReduce(ctx, args)
		case "quiet":
			r.applyQuiet(args)
		case "limit":
			r.applyLimit(args)
		case "interval":
			r.applyInterval(args)
		case "settings":
			r.handleSettings()
		default:
			r.sendText(helpText)
		}
		return
	}

	// Callback queries (inline buttons)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		data := cb.Data
		_ = r.answerCallback(cb.ID, "")

		switch {
		case data == "set_quiet":
			r.sendWithMarkup("Choose quiet hours (or Custom):", quietPresetsKeyboard())
		case strings.HasPrefix(data, "quiet:"):
			r.handlePresetCallback(strings.TrimPrefix(data, "quiet:"), pendingQuiet, "Enter quiet hours as HH-HH (e.g., 22-6):", r.applyQuiet)

		case data == "set_limit":
			r.sendWithMarkup("How many nudges per day at most?", limitPresetsKeyboard())
		case strings.HasPrefix(data, "limit:"):
			r.handlePresetCallback(strings.TrimPrefix(data, "limit:"), pendingLimit, limitHelp, r.applyLimit)

		case data == "set_interval":
			r.sendWithMarkup("Minimum time between nudges:", intervalPresetsKeyboard())
		case strings.HasPrefix(data, "interval:"):
			r.handlePresetCallback(strings.TrimPrefix(data, "interval:"), pendingInterval, "Enter interval, e.g.: 90m, 2h, 1h30m", r.applyInterval)

		case data == "set_quitdate":
			r.sendText("Enter your quit date as YYYY-MM-DD (or off):")
			r.setPending(pendingQuitDate)

		default:
			// Unknown callback: ignore silently
		}
	}
}

// handlePresetCallback applies a preset value or switches to free-form input.
func (r *Router) handlePresetCallback(val, pending, prompt string, apply func(string)) {
	if val == "custom" {
		r.sendText(prompt)
		r.setPending(pending)
		return
	}
	apply(val)
}
