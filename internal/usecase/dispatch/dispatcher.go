// Package dispatch запускает обработку сообщений параллельно с опросом long poll.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
)

// DefaultTimeout ограничивает обработку одного сообщения вместе с паузами ответа.
const DefaultTimeout = 2 * time.Minute

// Dispatcher ограничивает число одновременно обрабатываемых сообщений.
// Порядок обработки между сообщениями не гарантируется.
type Dispatcher struct {
	behavior domain.Behavior
	sem      *semaphore.Weighted
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
}

func New(behavior domain.Behavior, workers int, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		behavior: behavior,
		sem:      semaphore.NewWeighted(int64(workers)),
		timeout:  timeout,
		log:      logger.With().Str("behavior", behavior.Name()).Logger(),
	}
}

// Dispatch ждёт свободного обработчика и запускает сообщение в фоне.
// Ошибку возвращает, только если ctx отменён раньше.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.Message) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.MessagesDispatched.WithLabelValues(d.behavior.Name()).Inc()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.handle(ctx, msg)
	}()
	return nil
}

func (d *Dispatcher) handle(parent context.Context, msg domain.Message) {
	// остановка опроса не прерывает уже начатый ответ
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
	defer cancel()

	log := d.log.With().Str("request_id", uuid.NewString()).Int64("user_id", msg.SenderID).Logger()
	start := time.Now()
	if err := d.behavior.Handle(log.WithContext(ctx), msg); err != nil {
		metrics.BehaviorErrors.WithLabelValues(d.behavior.Name()).Inc()
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("dispatch: сообщение не обработано")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("dispatch: сообщение обработано")
}

// Wait дожидается всех запущенных обработчиков.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
