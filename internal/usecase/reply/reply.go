package reply

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
)

// Delays задаёт паузы перед ответом, чтобы сдерживать темп игры.
type Delays struct {
	Success time.Duration
	Fail    time.Duration
}

// Replier отправляет ответы. Ошибки доставки только логируются: сохранённый
// прогресс при этом не откатывается.
type Replier struct {
	platform domain.Platform
	delays   Delays
	log      zerolog.Logger
}

// New создаёт Replier.
func New(platform domain.Platform, delays Delays, logger zerolog.Logger) *Replier {
	return &Replier{platform: platform, delays: delays, log: logger.With().Str("component", "reply").Logger()}
}

// Success отвечает после короткой паузы.
func (r *Replier) Success(ctx context.Context, peerID int64, text string, img *domain.Image) {
	sleep(ctx, r.delays.Success)
	r.send(ctx, peerID, text, r.upload(ctx, peerID, img))
}

// Fail отвечает после длинной паузы.
func (r *Replier) Fail(ctx context.Context, peerID int64, text string) {
	sleep(ctx, r.delays.Fail)
	r.send(ctx, peerID, text, "")
}

// Now отвечает без паузы.
func (r *Replier) Now(ctx context.Context, peerID int64, text string) {
	r.send(ctx, peerID, text, "")
}

func (r *Replier) upload(ctx context.Context, peerID int64, img *domain.Image) string {
	if img == nil {
		return ""
	}
	ref, err := r.platform.UploadMessagePhoto(ctx, peerID, *img)
	if err != nil {
		metrics.BotSendErrors.Inc()
		r.log.Error().Err(err).Int64("peer_id", peerID).Msg("reply: не удалось загрузить картинку")
		return ""
	}
	return ref
}

func (r *Replier) send(ctx context.Context, peerID int64, text, attachment string) {
	if text == "" && attachment == "" {
		return
	}
	if err := r.platform.Send(ctx, peerID, text, attachment); err != nil {
		metrics.BotSendErrors.Inc()
		r.log.Error().Err(err).Int64("peer_id", peerID).Msg("reply: не удалось отправить сообщение")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
