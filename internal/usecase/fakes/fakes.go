// Package fakes содержит тестовые реализации платформы и хэшера.
package fakes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/store"
)

// NewStore поднимает хранилище прогресса поверх miniredis.
func NewStore(t testing.TB) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedis(client), mr
}

// Fingerprint собирает hex-отпечаток из повторённого байта b с flip
// инвертированными битами.
func Fingerprint(b byte, flip int) string {
	raw := make(domain.Fingerprint, 32)
	for i := range raw {
		raw[i] = b
	}
	for i := 0; i < flip; i++ {
		raw[i/8] ^= 1 << (i % 8)
	}
	return raw.String()
}

// AddPhoto кладёт картинку с отпечатком fp по адресу url.
func (p *Platform) AddPhoto(url, fp string) domain.Photo {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Photos[url] = []byte(fp)
	return domain.Photo{SourceURL: url}
}

// Texts возвращает тексты отправленных сообщений.
func (p *Platform) Texts() []string {
	var out []string
	for _, s := range p.Sent() {
		out = append(out, s.Text)
	}
	return out
}

// Joined склеивает тексты ответов через " | ".
func (p *Platform) Joined() string {
	return strings.Join(p.Texts(), " | ")
}

// Sent описывает одно отправленное сообщение.
type Sent struct {
	PeerID     int64
	Text       string
	Attachment string
}

// Platform хранит картинки по URL и записывает ответы.
type Platform struct {
	mu       sync.Mutex
	Photos   map[string][]byte
	Users    map[string]domain.User
	SendErr  error
	sent     []Sent
	uploads  int
	download int
}

// NewPlatform создаёт пустую платформу.
func NewPlatform() *Platform {
	return &Platform{Photos: make(map[string][]byte), Users: make(map[string]domain.User)}
}

var _ domain.Platform = (*Platform)(nil)

func (p *Platform) Send(_ context.Context, peerID int64, text, attachment string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return p.SendErr
	}
	p.sent = append(p.sent, Sent{PeerID: peerID, Text: text, Attachment: attachment})
	return nil
}

func (p *Platform) DownloadPhoto(_ context.Context, photo domain.Photo) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.download++
	b, ok := p.Photos[photo.SourceURL]
	if !ok {
		return nil, fmt.Errorf("fakes: no photo %s", photo.SourceURL)
	}
	return b, nil
}

func (p *Platform) UploadMessagePhoto(_ context.Context, peerID int64, img domain.Image) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads++
	return fmt.Sprintf("photo%d_%d", peerID, p.uploads), nil
}

func (p *Platform) LookupUser(_ context.Context, screenName string) (*domain.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.Users[screenName]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Sent возвращает копию отправленных сообщений.
func (p *Platform) Sent() []Sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sent(nil), p.sent...)
}

// Downloads возвращает число скачиваний.
func (p *Platform) Downloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.download
}

// Hasher считает содержимое картинки hex-отпечатком.
type Hasher struct{}

func (Hasher) Hash(image []byte) (domain.Fingerprint, error) {
	if len(image) == 0 {
		return nil, errors.New("fakes: empty image")
	}
	return domain.ParseFingerprint(string(image))
}
