// Package stats считает, сколько игроков нашли каждую картинку и прошли испытания.
package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/usecase/oneshot"
	"vk-quest-bot/internal/usecase/reply"
	"vk-quest-bot/internal/usecase/stone"
)

// PieceCount хранит число игроков, нашедших картинку.
type PieceCount struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// Report содержит снимок прогресса всех игроков.
type Report struct {
	Stages [][]PieceCount `json:"stages"`
	Chest  int64          `json:"chest"`
	Gates  int64          `json:"gates"`
}

// String форматирует отчёт для сообщения администратору.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString("Камень в лесу:\n")
	for i, stage := range r.Stages {
		fmt.Fprintf(&b, "Этап %d:\n", i+1)
		for _, p := range stage {
			fmt.Fprintf(&b, "- %s: %d\n", p.ID, p.Count)
		}
	}
	fmt.Fprintf(&b, "\nСундук: %d", r.Chest)
	fmt.Fprintf(&b, "\nВорота: %d", r.Gates)
	return b.String()
}

// Collector собирает отчёт одним конвейером запросов.
type Collector struct {
	store  domain.ProgressStore
	stages [][]string
}

func NewCollector(store domain.ProgressStore, game domain.Game) *Collector {
	stages := make([][]string, len(game.Stages))
	for i, st := range game.Stages {
		for _, p := range st.Pieces {
			stages[i] = append(stages[i], p.ID)
		}
	}
	return &Collector{store: store, stages: stages}
}

// Collect читает размеры всех множеств прогресса.
func (c *Collector) Collect(ctx context.Context) (Report, error) {
	var keys []string
	for _, ids := range c.stages {
		for _, id := range ids {
			keys = append(keys, stone.PieceBucket(id))
		}
	}
	keys = append(keys, oneshot.ChestCompleted, oneshot.GatesCompleted)

	lens, err := c.store.SetsLen(ctx, keys)
	if err != nil {
		return Report{}, err
	}
	if len(lens) != len(keys) {
		return Report{}, fmt.Errorf("stats: expected %d lengths, got %d", len(keys), len(lens))
	}

	r := Report{Stages: make([][]PieceCount, len(c.stages))}
	i := 0
	for s, ids := range c.stages {
		r.Stages[s] = make([]PieceCount, len(ids))
		for j, id := range ids {
			r.Stages[s][j] = PieceCount{ID: id, Count: lens[i]}
			i++
		}
	}
	r.Chest, r.Gates = lens[i], lens[i+1]
	return r, nil
}

// Behavior отвечает отчётом только администраторам.
type Behavior struct {
	collector *Collector
	reply     *reply.Replier
	admins    map[int64]bool
	log       zerolog.Logger
}

func NewBehavior(collector *Collector, replier *reply.Replier, adminIDs []int64, logger zerolog.Logger) *Behavior {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Behavior{collector: collector, reply: replier, admins: admins, log: logger.With().Str("behavior", "stats").Logger()}
}

func (b *Behavior) Name() string { return "stats" }

func (b *Behavior) Handle(ctx context.Context, msg domain.Message) error {
	if !b.admins[msg.SenderID] {
		return nil
	}
	r, err := b.collector.Collect(ctx)
	if err != nil {
		return err
	}
	b.reply.Now(ctx, msg.SenderID, r.String())
	return nil
}
