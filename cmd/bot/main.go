package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vk-quest-bot/internal/adapters/imagematch"
	"vk-quest-bot/internal/adapters/vk"
	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/config"
	httpinfra "vk-quest-bot/internal/infra/http"
	"vk-quest-bot/internal/infra/log"
	"vk-quest-bot/internal/infra/metrics"
	"vk-quest-bot/internal/infra/store"
	"vk-quest-bot/internal/usecase/dispatch"
	"vk-quest-bot/internal/usecase/hashecho"
	"vk-quest-bot/internal/usecase/oneshot"
	"vk-quest-bot/internal/usecase/reply"
	"vk-quest-bot/internal/usecase/stats"
	"vk-quest-bot/internal/usecase/stone"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.VK.Token == "" {
		logger.Fatal().Msg("VK_TOKEN не задан")
	}

	rdb, err := store.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
	}
	defer rdb.Close()
	progress := store.NewRedis(rdb)

	game, err := config.LoadGame(cfg.GameFile, imagematch.Spec)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось загрузить игру")
	}

	client := vk.NewClient(cfg.VK.Token, vk.Options{
		APIURL:  cfg.VK.APIURL,
		Version: cfg.VK.APIVersion,
		Timeout: time.Duration(cfg.VK.LongPollWait+35) * time.Second,
	}, logger)
	if err := client.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось получить сообщество")
	}
	logger.Info().Str("community", client.String()).Msg("бот подключен")

	replier := reply.New(client, reply.Delays{Success: cfg.Delays.Success, Fail: cfg.Delays.Fail}, logger)
	collector := stats.NewCollector(progress, game)
	behavior, err := newBehavior(cfg, game, progress, client, replier, collector, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("behavior", cfg.Behavior).Msg("не удалось создать поведение")
	}

	srv := httpinfra.NewServer(logger, progress)
	srv.Router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		report, err := collector.Collect(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})
	srv.Start(ctx, cfg.MetricsAddr)

	dispatcher := dispatch.New(behavior, cfg.Workers, dispatch.DefaultTimeout, logger)
	poll(ctx, vk.NewLongPoll(client, cfg.VK.LongPollWait), dispatcher, cfg.PollErrorBackoff, logger)

	logger.Info().Msg("остановка бота, ждём обработчики")
	dispatcher.Wait()
}

func newBehavior(cfg config.AppConfig, game domain.Game, progress domain.ProgressStore, platform domain.Platform, replier *reply.Replier, collector *stats.Collector, logger zerolog.Logger) (domain.Behavior, error) {
	hasher := imagematch.New()
	switch cfg.Behavior {
	case "stone":
		return stone.NewService(progress, platform, hasher, game, replier, cfg.AdminIDs, logger)
	case "chest":
		return oneshot.NewChest(progress, platform, hasher, game, replier, logger)
	case "gates":
		return oneshot.NewGates(progress, game, replier, logger)
	case "stats":
		return stats.NewBehavior(collector, replier, cfg.AdminIDs, logger), nil
	case "hash":
		return hashecho.New(platform, hasher, replier), nil
	default:
		return nil, errors.New("неизвестное поведение " + cfg.Behavior)
	}
}

// poll опрашивает long poll до отмены ctx. Потерянная сессия получается заново.
func poll(ctx context.Context, lp *vk.LongPoll, d *dispatch.Dispatcher, backoff time.Duration, logger zerolog.Logger) {
	handler := func(msg domain.Message) error { return d.Dispatch(ctx, msg) }
	started := false
	for ctx.Err() == nil {
		if !started {
			if err := lp.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("longpoll: не удалось начать сессию")
				wait(ctx, backoff)
				continue
			}
			started = true
		}
		if _, err := lp.PollOnce(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return
			}
			var failed *vk.FailedError
			if errors.As(err, &failed) || errors.Is(err, vk.ErrProtocol) {
				started = false
			}
			logger.Error().Err(err).Bool("restart", !started).Msg("longpoll: ошибка опроса")
			wait(ctx, backoff)
		}
	}
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
