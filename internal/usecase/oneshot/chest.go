// Package oneshot реализует испытания, которые каждый игрок проходит один раз.
package oneshot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/adapters/imagematch"
	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
	"vk-quest-bot/internal/usecase/reply"
)

// Множества игроков, получивших награду.
const (
	ChestCompleted = "chest_completed_by"
	GatesCompleted = "gates_completed_by"
)

// Chest выдаёт награду за картинку-ключ.
type Chest struct {
	store     domain.ProgressStore
	photos    domain.PhotoTransport
	hasher    domain.Hasher
	reply     *reply.Replier
	challenge domain.ImageChallenge
	tol       int
	log       zerolog.Logger
}

// NewChest создаёт испытание с сундуком.
func NewChest(store domain.ProgressStore, photos domain.PhotoTransport, hasher domain.Hasher, game domain.Game, replier *reply.Replier, logger zerolog.Logger) (*Chest, error) {
	if len(game.Chest.Fingerprint) == 0 {
		return nil, fmt.Errorf("chest: fingerprint is empty")
	}
	return &Chest{
		store:     store,
		photos:    photos,
		hasher:    hasher,
		reply:     replier,
		challenge: game.Chest,
		tol:       game.Tolerance,
		log:       logger.With().Str("behavior", "chest").Logger(),
	}, nil
}

func (c *Chest) Name() string { return "chest" }

func (c *Chest) Handle(ctx context.Context, msg domain.Message) error {
	user := domain.Member(msg.SenderID)
	done, err := c.store.SetContains(ctx, ChestCompleted, user)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	matched, err := c.matches(ctx, msg)
	if err != nil {
		return err
	}
	if !matched {
		c.reply.Fail(ctx, msg.SenderID, c.challenge.FailText)
		return nil
	}
	return award(ctx, c.store, c.reply, c.log, ChestCompleted, "chest", msg.SenderID, c.challenge.SuccessText, c.challenge.RewardImage)
}

func (c *Chest) matches(ctx context.Context, msg domain.Message) (bool, error) {
	for _, att := range msg.AllAttachments() {
		raw, err := c.photos.DownloadPhoto(ctx, att)
		if err != nil {
			return false, err
		}
		hash, err := c.hasher.Hash(raw)
		if err != nil {
			return false, err
		}
		if imagematch.Matches(c.challenge.Fingerprint, hash, c.tol) {
			return true, nil
		}
	}
	return false, nil
}

// award отмечает игрока и отвечает, только если отметка новая.
func award(ctx context.Context, store domain.ProgressStore, r *reply.Replier, log zerolog.Logger, set, name string, peerID int64, text string, img *domain.Image) error {
	added, err := store.SetAddNew(ctx, set, domain.Member(peerID))
	if err != nil {
		return err
	}
	if !added {
		log.Debug().Int64("user_id", peerID).Msg(name + ": награда уже выдана")
		return nil
	}
	metrics.ChallengeCompletions.WithLabelValues(name).Inc()
	log.Info().Int64("user_id", peerID).Msg(name + ": испытание пройдено")
	r.Success(ctx, peerID, text, img)
	return nil
}
