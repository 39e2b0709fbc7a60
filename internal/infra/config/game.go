package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"vk-quest-bot/internal/domain"
)

//go:embed game_default.yaml
var defaultGame []byte

// ErrHashVersion означает, что отпечатки в файле игры посчитаны другой версией хэша.
var ErrHashVersion = errors.New("config: game hash_version mismatch")

type gameFile struct {
	HashVersion string          `yaml:"hash_version"`
	Tolerance   int             `yaml:"tolerance"`
	Stages      []stageFile     `yaml:"stages"`
	Chest       imageOneShot    `yaml:"chest"`
	Gates       textOneShotFile `yaml:"gates"`
}

type stageFile struct {
	Pieces          []pieceFile `yaml:"pieces"`
	WrongStageText  string      `yaml:"wrong_stage_text"`
	CompletionText  string      `yaml:"completion_text"`
	CompletionImage string      `yaml:"completion_image"`
}

type pieceFile struct {
	ID             string `yaml:"id"`
	Fingerprint    string `yaml:"fingerprint"`
	ToleranceBonus int    `yaml:"tolerance_bonus"`
}

type imageOneShot struct {
	Fingerprint string `yaml:"fingerprint"`
	SuccessText string `yaml:"success_text"`
	FailText    string `yaml:"fail_text"`
	RewardImage string `yaml:"reward_image"`
}

type textOneShotFile struct {
	Answer      string `yaml:"answer"`
	SuccessText string `yaml:"success_text"`
	FailText    string `yaml:"fail_text"`
}

// LoadGame читает описание игры из path или встроенное, если path пуст.
// Пути к картинкам считаются относительно файла игры.
func LoadGame(path string, spec domain.HashSpec) (domain.Game, error) {
	raw := defaultGame
	baseDir := "."
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return domain.Game{}, fmt.Errorf("config: read game: %w", err)
		}
		raw = b
		baseDir = filepath.Dir(path)
	}
	return ParseGame(raw, baseDir, spec)
}

// ParseGame разбирает YAML описания игры и проверяет его.
func ParseGame(raw []byte, baseDir string, spec domain.HashSpec) (domain.Game, error) {
	var f gameFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.Game{}, fmt.Errorf("config: parse game: %w", err)
	}
	if f.HashVersion != spec.Version {
		return domain.Game{}, fmt.Errorf("%w: file %q, matcher %q", ErrHashVersion, f.HashVersion, spec.Version)
	}
	if f.Tolerance < 0 {
		return domain.Game{}, errors.New("config: tolerance must not be negative")
	}

	game := domain.Game{HashVersion: f.HashVersion, Tolerance: f.Tolerance}
	seen := make(map[string]bool)
	for i, st := range f.Stages {
		if len(st.Pieces) == 0 {
			return domain.Game{}, fmt.Errorf("config: stage %d has no pieces", i+1)
		}
		stage := domain.Stage{
			WrongStageText: st.WrongStageText,
			CompletionText: st.CompletionText,
		}
		for _, p := range st.Pieces {
			id := strings.TrimSpace(p.ID)
			if id == "" {
				return domain.Game{}, fmt.Errorf("config: stage %d: piece without id", i+1)
			}
			if seen[id] {
				return domain.Game{}, fmt.Errorf("config: duplicate piece id %q", id)
			}
			seen[id] = true
			fp, err := parseFingerprint(p.Fingerprint, spec)
			if err != nil {
				return domain.Game{}, fmt.Errorf("config: piece %q: %w", id, err)
			}
			stage.Pieces = append(stage.Pieces, domain.Piece{ID: id, Fingerprint: fp, ToleranceBonus: p.ToleranceBonus})
		}
		img, err := loadImage(baseDir, st.CompletionImage)
		if err != nil {
			return domain.Game{}, fmt.Errorf("config: stage %d: %w", i+1, err)
		}
		stage.CompletionImage = img
		game.Stages = append(game.Stages, stage)
	}

	game.Chest = domain.ImageChallenge{
		SuccessText: f.Chest.SuccessText,
		FailText:    f.Chest.FailText,
	}
	if f.Chest.Fingerprint != "" {
		fp, err := parseFingerprint(f.Chest.Fingerprint, spec)
		if err != nil {
			return domain.Game{}, fmt.Errorf("config: chest: %w", err)
		}
		game.Chest.Fingerprint = fp
	}
	img, err := loadImage(baseDir, f.Chest.RewardImage)
	if err != nil {
		return domain.Game{}, fmt.Errorf("config: chest: %w", err)
	}
	game.Chest.RewardImage = img

	game.Gates = domain.TextChallenge{
		Answer:      f.Gates.Answer,
		SuccessText: f.Gates.SuccessText,
		FailText:    f.Gates.FailText,
	}
	return game, nil
}

func parseFingerprint(s string, spec domain.HashSpec) (domain.Fingerprint, error) {
	fp, err := domain.ParseFingerprint(s)
	if err != nil {
		return nil, err
	}
	if spec.Size > 0 && len(fp) != spec.Size {
		return nil, fmt.Errorf("%w: fingerprint has %d bytes, want %d", ErrHashVersion, len(fp), spec.Size)
	}
	return fp, nil
}

func loadImage(baseDir, path string) (*domain.Image, error) {
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = "jpg"
	}
	return &domain.Image{Data: data, Ext: ext}, nil
}
