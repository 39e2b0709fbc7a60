package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

// Fingerprint хранит перцептивный хэш фиксированной длины.
type Fingerprint []byte

// ParseFingerprint разбирает hex-представление отпечатка.
func ParseFingerprint(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %q: %w", s, err)
	}
	if len(b) == 0 {
		return nil, errors.New("fingerprint is empty")
	}
	return Fingerprint(b), nil
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// Distance возвращает расстояние Хэмминга. Отпечатки разной длины
// несравнимы, для них возвращается -1.
func (f Fingerprint) Distance(other Fingerprint) int {
	if len(f) != len(other) {
		return -1
	}
	d := 0
	for i := range f {
		d += bits.OnesCount8(f[i] ^ other[i])
	}
	return d
}

// HashSpec фиксирует версию и длину отпечатка. Смена конфигурации хэша
// делает недействительными все сохранённые эталоны.
type HashSpec struct {
	Version string
	Size    int
}

// Piece описывает одну требуемую картинку этапа.
type Piece struct {
	ID          string
	Fingerprint Fingerprint
	// ToleranceBonus добавляется к общему допуску для этой картинки.
	ToleranceBonus int
}

// Stage задаёт набор картинок, которые нужно собрать вместе.
type Stage struct {
	Pieces          []Piece
	WrongStageText  string
	CompletionText  string
	CompletionImage *Image
}

// ImageChallenge описывает одноразовое испытание с одной картинкой.
type ImageChallenge struct {
	Fingerprint Fingerprint
	SuccessText string
	FailText    string
	RewardImage *Image
}

// TextChallenge описывает одноразовое испытание с секретной подстрокой.
type TextChallenge struct {
	Answer      string
	SuccessText string
	FailText    string
}

// Game описывает игру. Загружается один раз при старте и не меняется.
type Game struct {
	HashVersion string
	Tolerance   int
	Stages      []Stage
	Chest       ImageChallenge
	Gates       TextChallenge
}
