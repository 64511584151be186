package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/coach"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/config"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/metrics"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/planner"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/scheduler"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/store"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/telegram"
)

// pollTimeout is the long-poll timeout for getUpdates, in seconds.
const pollTimeout = 30

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	loc     *time.Location
	metrics *metrics.Exporter
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Long polls hold a request open for pollTimeout, so the client deadline
	// must outlast it. Deliveries are bounded tighter by the planner's context.
	client := &http.Client{Timeout: pollTimeout*time.Second + cfg.DeliveryTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	return &App{
		cfg:     cfg,
		log:     log,
		bot:     bot,
		loc:     loc,
		metrics: metrics.NewExporter(metrics.DefaultConfig()),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting quit coach",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.loc.String()),
		zap.String("schedule", a.cfg.EvalSchedule),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	defer func() { _ = repo.Close() }()
	a.log.Info("sqlite ready")

	catalogue, err := coach.DefaultCatalogue()
	if err != nil {
		return err
	}
	limits, err := a.cfg.Limits()
	if err != nil {
		return err
	}

	policy := coach.DefaultPolicyConfig()
	policy.Threshold = a.cfg.RiskThreshold
	engine := coach.NewEngine(policy, catalogue, coach.NewSeededPicker(uint64(time.Now().UnixNano())))
	features := coach.NewFeatureStore(coach.DefaultFeatureConfig())

	plan := planner.New(engine, features, repo, repo,
		telegram.NewNotifier(a.bot, a.cfg.OwnerChatID), a.log.Named("planner"),
		planner.WithLocation(a.loc),
		planner.WithRateLimiter(planner.NewRateLimiter(limits)),
		planner.WithTipPublisher(repo),
		planner.WithRecorder(a.metrics),
		planner.WithDeliveryTimeout(a.cfg.DeliveryTimeout),
	)
	defer plan.Wait()

	sched, err := scheduler.New(plan, a.log.Named("scheduler"), a.cfg.EvalSchedule, a.loc)
	if err != nil {
		return err
	}
	router := telegram.NewRouter(a.bot, a.log.Named("telegram"), repo, plan, features, a.cfg.OwnerChatID)
	srv := a.httpServer(repo)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")

		// Create a short-lived shutdown context and cancel it immediately after use.
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		a.consumeUpdates(gctx, router)
		return nil
	})

	return g.Wait()
}

// consumeUpdates long-polls Telegram and routes updates until ctx ends.
func (a *App) consumeUpdates(ctx context.Context, router *telegram.Router) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		case upd, ok := <-updCh:
			if !ok {
				return
			}
			router.HandleUpdate(ctx, upd)
		}
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (a *App) httpServer(db pinger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", a.metrics.Handler())

	return &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
