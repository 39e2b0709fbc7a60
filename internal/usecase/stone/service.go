package stone

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/adapters/imagematch"
	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
	"vk-quest-bot/internal/usecase/reply"
)

// Ключи хранилища. Менять их нельзя: по ним читается прогресс после перезапуска.
const (
	StageHash         = "stone_stage"
	PieceBucketPrefix = "stone_letter_"
)

// PieceBucket возвращает множество пользователей, приславших картинку piece.
func PieceBucket(pieceID string) string {
	return PieceBucketPrefix + pieceID
}

// Service ведёт пользователей по этапам.
type Service struct {
	store  domain.ProgressStore
	photos domain.PhotoTransport
	hasher domain.Hasher
	reply  *reply.Replier
	admin  *AdminDialog
	admins map[int64]bool
	stages []domain.Stage
	tol    int
	log    zerolog.Logger
}

// NewService создаёт поведение. Сообщения администраторов уходят в admin-диалог.
func NewService(store domain.ProgressStore, platform domain.Platform, hasher domain.Hasher, game domain.Game, replier *reply.Replier, adminIDs []int64, logger zerolog.Logger) (*Service, error) {
	if len(game.Stages) == 0 {
		return nil, fmt.Errorf("stone: game has no stages")
	}
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Service{
		store:  store,
		photos: platform,
		hasher: hasher,
		reply:  replier,
		admin:  NewAdminDialog(store, platform, replier, len(game.Stages)),
		admins: admins,
		stages: game.Stages,
		tol:    game.Tolerance,
		log:    logger.With().Str("behavior", "stone").Logger(),
	}, nil
}

// Name возвращает имя поведения.
func (s *Service) Name() string { return "stone" }

// Handle обрабатывает одно сообщение.
func (s *Service) Handle(ctx context.Context, msg domain.Message) error {
	if s.admins[msg.SenderID] {
		return s.admin.Handle(ctx, msg)
	}

	user := domain.Member(msg.SenderID)
	// hincrby 0 читает этап или создаёт его нулевым
	stage, err := s.store.HashIncr(ctx, StageHash, user, 0)
	if err != nil {
		return err
	}
	if stage < 0 || stage >= int64(len(s.stages)) {
		return nil
	}
	current := s.stages[stage]
	required := make([]string, len(current.Pieces))
	for i, p := range current.Pieces {
		required[i] = PieceBucket(p.ID)
	}

	matched, wrongStage, err := s.match(ctx, msg, int(stage))
	if err != nil {
		return err
	}
	if wrongStage {
		s.log.Debug().Int64("user_id", msg.SenderID).Int64("stage", stage).Msg("stone: картинка другого этапа")
		s.reply.Fail(ctx, msg.SenderID, current.WrongStageText)
		return nil
	}

	total, err := s.store.SetsAddAndCountContaining(ctx, matched, required, user)
	if err != nil {
		return err
	}
	for _, b := range matched {
		metrics.PieceMatches.WithLabelValues(b[len(PieceBucketPrefix):]).Inc()
	}

	if total < len(required) {
		text := fmt.Sprintf("%d/%d", total, len(required))
		if len(matched) > 0 {
			s.reply.Success(ctx, msg.SenderID, text, nil)
		} else {
			s.reply.Fail(ctx, msg.SenderID, text)
		}
		return nil
	}

	advanced, next, err := s.store.HashAdvance(ctx, StageHash, user, stage)
	if err != nil {
		return err
	}
	if !advanced {
		// параллельная доставка того же сообщения уже перевела этап
		s.log.Debug().Int64("user_id", msg.SenderID).Int64("stage", next).Msg("stone: этап уже пройден")
		return nil
	}
	metrics.StageCompletions.WithLabelValues(strconv.FormatInt(stage+1, 10)).Inc()
	s.log.Info().Int64("user_id", msg.SenderID).Int64("stage", next).Msg("stone: этап пройден")
	s.reply.Success(ctx, msg.SenderID, current.CompletionText, current.CompletionImage)
	return nil
}

// match сверяет каждое вложение со всеми картинками всех этапов. Совпадение
// с чужим этапом прерывает разбор: найденные ранее картинки отбрасываются.
func (s *Service) match(ctx context.Context, msg domain.Message, stage int) ([]string, bool, error) {
	var matched []string
	seen := make(map[string]bool)
	for _, att := range msg.AllAttachments() {
		raw, err := s.photos.DownloadPhoto(ctx, att)
		if err != nil {
			return nil, false, err
		}
		hash, err := s.hasher.Hash(raw)
		if err != nil {
			return nil, false, err
		}
		for i, st := range s.stages {
			for _, p := range st.Pieces {
				if !imagematch.Matches(p.Fingerprint, hash, s.tol+p.ToleranceBonus) {
					continue
				}
				if i != stage {
					return nil, true, nil
				}
				bucket := PieceBucket(p.ID)
				if !seen[bucket] {
					seen[bucket] = true
					matched = append(matched, bucket)
				}
			}
		}
	}
	return matched, false, nil
}

// StageCount возвращает число этапов.
func (s *Service) StageCount() int { return len(s.stages) }
