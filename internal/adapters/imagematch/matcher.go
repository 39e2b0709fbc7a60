package imagematch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"

	"vk-quest-bot/internal/domain"
)

// Конфигурация хэша. Эталонные отпечатки в файле игры действительны только
// для этой версии.
const (
	Version  = "phash-16x16-v1"
	gridSize = 16
	Size     = gridSize * gridSize / 8
)

// Spec описывает текущую конфигурацию отпечатков.
var Spec = domain.HashSpec{Version: Version, Size: Size}

// Matcher считает DCT-хэш по сетке gridSize x gridSize.
type Matcher struct{}

// New создаёт Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Hash декодирует картинку и возвращает её отпечаток.
// Превью платформы всегда приходят в JPEG, PNG принимается для локальных файлов.
func (m *Matcher) Hash(raw []byte) (domain.Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("imagematch: decode: %w", err)
	}
	return HashImage(img)
}

// HashImage считает отпечаток уже декодированной картинки.
func HashImage(img image.Image) (domain.Fingerprint, error) {
	h, err := goimagehash.ExtPerceptionHash(img, gridSize, gridSize)
	if err != nil {
		return nil, fmt.Errorf("imagematch: hash: %w", err)
	}
	words := h.GetHash()
	fp := make(domain.Fingerprint, 0, Size)
	for _, w := range words {
		fp = binary.BigEndian.AppendUint64(fp, w)
	}
	if len(fp) != Size {
		return nil, fmt.Errorf("imagematch: unexpected hash size %d", len(fp))
	}
	return fp, nil
}

// Matches сообщает, что расстояние Хэмминга не превышает tolerance.
func Matches(reference, candidate domain.Fingerprint, tolerance int) bool {
	d := reference.Distance(candidate)
	return d >= 0 && d <= tolerance
}
