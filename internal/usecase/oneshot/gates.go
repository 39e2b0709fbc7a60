package oneshot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/usecase/reply"
)

// ErrEmptyAnswer возвращается, если у ворот не задан ответ: пустая строка
// содержится в любом тексте.
var ErrEmptyAnswer = errors.New("gates: answer is empty")

// Gates открываются сообщением, содержащим ответ.
type Gates struct {
	store     domain.ProgressStore
	reply     *reply.Replier
	challenge domain.TextChallenge
	log       zerolog.Logger
}

func NewGates(store domain.ProgressStore, game domain.Game, replier *reply.Replier, logger zerolog.Logger) (*Gates, error) {
	if game.Gates.Answer == "" {
		return nil, ErrEmptyAnswer
	}
	return &Gates{
		store:     store,
		reply:     replier,
		challenge: game.Gates,
		log:       logger.With().Str("behavior", "gates").Logger(),
	}, nil
}

func (g *Gates) Name() string { return "gates" }

func (g *Gates) Handle(ctx context.Context, msg domain.Message) error {
	done, err := g.store.SetContains(ctx, GatesCompleted, domain.Member(msg.SenderID))
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if !strings.Contains(msg.Text, g.challenge.Answer) {
		g.reply.Fail(ctx, msg.SenderID, g.challenge.FailText)
		return nil
	}
	return award(ctx, g.store, g.reply, g.log, GatesCompleted, "gates", msg.SenderID, g.challenge.SuccessText, nil)
}
