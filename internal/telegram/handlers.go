package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/coach"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/planner"
)

const maxLimitPerDay = 24

var errReduceUsage = errors.New("invalid reduce arguments")

// ensureProfile makes sure the profile row exists; if not, creates it with defaults.
func (r *Router) ensureProfile(ctx context.Context, from *tgbotapi.User) (*domain.UserProfile, error) {
	p, err := r.repo.GetActiveProfile(ctx)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	p = &domain.UserProfile{
		ReductionCurve: domain.CurveLinear,
		CreatedAt:      r.now().UTC(),
	}
	if from != nil {
		p.Name = from.FirstName
	}
	if err := r.repo.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// snapshot collects the current feature vector the same way the planner does.
func (r *Router) snapshot(ctx context.Context) (coach.FeatureVector, *domain.UserProfile, error) {
	now := r.now().In(r.coach.Location())
	since := now.Add(-r.features.Lookback())
	events, err := r.repo.QueryEvents(ctx, &since)
	if err != nil {
		return coach.FeatureVector{}, nil, err
	}
	profile, err := r.repo.GetActiveProfile(ctx)
	if err != nil {
		return coach.FeatureVector{}, nil, err
	}
	return r.features.Collect(events, profile, now), profile, nil
}

// --- Generic helpers ---

func (r *Router) sendText(text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(r.ownerID, text)); err != nil {
		r.log.Warn("send failed", zap.Error(err))
	}
}

func (r *Router) sendWithMarkup(text string, markup any) {
	msg := tgbotapi.NewMessage(r.ownerID, text)
	msg.ReplyMarkup = markup
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

func (r *Router) localClock(t time.Time) string {
	return t.In(r.coach.Location()).Format("15:04")
}

// --- Log commands ---

func (r *Router) handleStart(ctx context.Context, from *tgbotapi.User) {
	if _, err := r.ensureProfile(ctx, from); err != nil {
		r.log.Error("ensureProfile failed", zap.Error(err))
		r.sendText("Profile initialization error. Please try again later.")
		return
	}
	r.sendWithMarkup(startText, mainMenuKeyboard())
}

func (r *Router) handleSmoke(ctx context.Context, args string) {
	tags, note := parseSmokeArgs(args)
	ev, err := r.repo.AddEvent(ctx, r.now(), note, tags)
	if err != nil {
		r.log.Error("add event failed", zap.Error(err))
		r.sendText(storageError)
		return
	}

	today := "—"
	if fv, _, err := r.snapshot(ctx); err == nil {
		today = formatToday(fv)
	} else {
		r.log.Warn("snapshot failed", zap.Error(err))
	}
	r.sendText(fmt.Sprintf(smokeLoggedFmt, r.localClock(ev.Timestamp), today))

	// A fresh event is the strongest craving signal; let the planner decide.
	res := r.coach.EvaluateAndNotify(ctx, false)
	r.log.Debug("post-log evaluation",
		zap.String("action", res.Action.Kind.String()),
		zap.String("rejected", res.Rejected),
	)
}

func (r *Router) handleUndo(ctx context.Context) {
	ev, err := r.repo.DeleteLastEvent(ctx)
	if err != nil {
		r.log.Error("delete last event failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if ev == nil {
		r.sendText(nothingToUndo)
		return
	}
	r.sendText(fmt.Sprintf(undoneFmt, r.localClock(ev.Timestamp)))
}

func (r *Router) handleStatus(ctx context.Context) {
	fv, profile, err := r.snapshot(ctx)
	if err != nil {
		r.log.Error("snapshot failed", zap.Error(err))
		r.sendText("Error reading your log.")
		return
	}
	st := r.coach.Status()

	quit := "—"
	if profile != nil && profile.QuitDate != nil {
		quit = profile.QuitDate.In(r.coach.Location()).Format("2006-01-02") + " (" + relativeDays(fv.DaysRelativeToQuitDate) + ")"
	}
	last := "—"
	if st.State.LastSent != nil {
		last = r.localClock(*st.State.LastSent)
	}

	body := fmt.Sprintf("%s\n\n"+statusFmt,
		statusTitle,
		formatToday(fv),
		fv.CurrentStreakDays,
		fv.AvgPerDay30d,
		quit,
		formatNudgeCount(st.State.SentToday, st.Limits.MaxPerDay),
		r.formatQuiet(st),
		st.Limits.MinInterval.String(),
		last,
	)
	r.sendWithMarkup(body, mainMenuKeyboard())
}

// formatNudgeCount renders the daily counter. Forced checks consume slots
// without being capped, so the count can exceed the limit.
func formatNudgeCount(sent, limit int) string {
	if sent > limit {
		return fmt.Sprintf("%d of %d (manual /check nudges count too)", sent, limit)
	}
	return fmt.Sprintf("%d of %d", sent, limit)
}

// formatQuiet renders the quiet window and, while it is active, when it ends.
func (r *Router) formatQuiet(st planner.Status) string {
	q := st.Limits.Quiet
	if !q.Contains(st.Now.Hour()) {
		return q.String()
	}
	return fmt.Sprintf("%s (active until %s)", q, r.localClock(q.EndsAt(st.Now)))
}

func (r *Router) handleCheck(ctx context.Context) {
	res := r.coach.EvaluateAndNotify(ctx, true)
	switch {
	case res.Rejected == planner.ReasonCanceled:
		r.sendText("Could not check right now. Please try again.")
	case !res.Action.IsNudge():
		r.sendText(fmt.Sprintf(lowRiskFmt, res.Action.Score))
	}
	// A nudge reaches the chat through the notifier.
}

func (r *Router) handleTip(ctx context.Context) {
	msg, at, err := r.repo.LatestTip(ctx)
	if err != nil {
		r.log.Error("latest tip failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if msg == "" {
		r.sendText(noTipYet)
		return
	}
	r.sendText(fmt.Sprintf("💡 %s\n\n(%s)", msg, at.In(r.coach.Location()).Format("Jan 2 15:04")))
}

func (r *Router) handleTags(ctx context.Context) {
	tags, err := r.repo.ListTags(ctx)
	if err != nil {
		r.log.Error("list tags failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if len(tags) == 0 {
		r.sendText(noTagsYet)
		return
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, "#"+t.Name)
	}
	r.sendText("Your tags: " + strings.Join(names, " "))
}

// --- Quit plan ---

func (r *Router) handleQuitDate(ctx context.Context, args string) {
	if args == "" {
		r.sendText(quitDateHelp)
		return
	}
	var quit *time.Time
	if !strings.EqualFold(args, "off") {
		t, err := domain.ParseQuitDate(args, r.coach.Location())
		if err != nil {
			r.sendText(quitDateHelp)
			return
		}
		quit = &t
	}

	p, err := r.ensureProfile(ctx, nil)
	if err != nil {
		r.log.Error("ensureProfile failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	p.QuitDate = quit
	if err := r.repo.UpsertProfile(ctx, p); err != nil {
		r.log.Error("save quit date failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if quit == nil {
		r.sendText("Quit date cleared.")
		return
	}
	r.sendText("Quit date set: " + quit.In(r.coach.Location()).Format("2006-01-02") + " 🎯")
}

func (r *Router) handleReduce(ctx context.Context, args string) {
	off, baseline, curve, err := parseReduceArgs(args)
	if err != nil {
		r.sendText(reduceHelp)
		return
	}
	p, err := r.ensureProfile(ctx, nil)
	if err != nil {
		r.log.Error("ensureProfile failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if off {
		p.ReductionEnabled = false
	} else {
		// the plan starts today
		p.ReductionEnabled = true
		p.BaselinePerDay = baseline
		p.ReductionCurve = curve
		p.CreatedAt = r.now().UTC()
	}
	if err := r.repo.UpsertProfile(ctx, p); err != nil {
		r.log.Error("save reduction plan failed", zap.Error(err))
		r.sendText(storageError)
		return
	}
	if off {
		r.sendText("Reduction plan turned off.")
		return
	}
	target := p.DailyTarget(r.now().In(r.coach.Location()))
	r.sendText(fmt.Sprintf("Reduction plan: from %.0f/day, %s curve. Today's target: %.0f", baseline, curve, target))
}

// --- Notification limits ---

func (r *Router) handleSettings() {
	r.sendWithMarkup("What do you want to configure?", settingsInlineKeyboard())
}

func (r *Router) applyQuiet(val string) {
	q, err := domain.ParseQuietHours(val)
	if err != nil {
		r.sendText(quietHelp)
		return
	}
	if r.updateLimits(func(l *planner.Limits) { l.Quiet = q }) {
		r.sendText("Quiet hours updated: " + q.String())
	}
}

func (r *Router) applyLimit(val string) {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n < 0 || n > maxLimitPerDay {
		r.sendText(limitHelp)
		return
	}
	if r.updateLimits(func(l *planner.Limits) { l.MaxPerDay = n }) {
		r.sendText(fmt.Sprintf("Daily limit updated: %d", n))
	}
}

func (r *Router) applyInterval(val string) {
	d, err := domain.ParseDurationHuman(val)
	if err != nil {
		r.sendText(intervalHelp)
		return
	}
	if r.updateLimits(func(l *planner.Limits) { l.MinInterval = d }) {
		r.sendText("Min interval updated: " + d.String())
	}
}

func (r *Router) updateLimits(mutate func(*planner.Limits)) bool {
	limits := r.coach.Status().Limits
	mutate(&limits)
	if err := r.coach.UpdateLimits(limits); err != nil {
		r.log.Warn("update limits rejected", zap.Error(err))
		r.sendText("Could not apply: " + err.Error())
		return false
	}
	return true
}

// --- Free-form dispatcher (for all "Custom" inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, text string) {
	switch r.getPending() {
	case pendingQuiet:
		r.clearPending()
		r.applyQuiet(text)
	case pendingLimit:
		r.clearPending()
		r.applyLimit(text)
	case pendingInterval:
		r.clearPending()
		r.applyInterval(text)
	case pendingQuitDate:
		r.clearPending()
		r.handleQuitDate(ctx, text)
	default:
		// No pending flow: ignore free-form message
	}
}

// --- Parsing helpers ---

// parseSmokeArgs splits "/smoke" arguments into #tags and a free-text note.
func parseSmokeArgs(args string) (tags []string, note string) {
	var words []string
	for _, f := range strings.Fields(args) {
		if strings.HasPrefix(f, "#") && len(f) > 1 {
			tags = append(tags, strings.ToLower(f[1:]))
			continue
		}
		words = append(words, f)
	}
	return tags, strings.Join(words, " ")
}

// parseReduceArgs parses "off" or "<baseline> [curve]".
func parseReduceArgs(args string) (off bool, baseline float64, curve domain.ReductionCurve, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return false, 0, "", errReduceUsage
	}
	if len(fields) == 1 && strings.EqualFold(fields[0], "off") {
		return true, 0, "", nil
	}
	baseline, err = strconv.ParseFloat(fields[0], 64)
	if err != nil || baseline <= 0 || baseline > 200 {
		return false, 0, "", errReduceUsage
	}
	curve = domain.CurveLinear
	if len(fields) == 2 {
		if curve, err = domain.ParseReductionCurve(fields[1]); err != nil {
			return false, 0, "", err
		}
	}
	return false, baseline, curve, nil
}

func formatToday(fv coach.FeatureVector) string {
	if fv.DailyTarget > 0 {
		return fmt.Sprintf("%d of %.0f allowed", fv.TodayCount, fv.DailyTarget)
	}
	return strconv.Itoa(fv.TodayCount)
}

// relativeDays renders a signed day offset from the quit date.
func relativeDays(days int) string {
	switch {
	case days == 0:
		return "today"
	case days < 0:
		return fmt.Sprintf("in %d days", -days)
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
