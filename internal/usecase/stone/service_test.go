package stone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/store"
	"vk-quest-bot/internal/usecase/fakes"
	"vk-quest-bot/internal/usecase/reply"
)

const (
	player = int64(501)
	admin  = int64(7)
)

var (
	fpA = fakes.Fingerprint(0x00, 0)
	fpB = fakes.Fingerprint(0xff, 0)
	fpC = fakes.Fingerprint(0x0f, 0)
	fpD = fakes.Fingerprint(0xf0, 0)
)

func mustFP(t *testing.T, s string) domain.Fingerprint {
	t.Helper()
	fp, err := domain.ParseFingerprint(s)
	if err != nil {
		t.Fatalf("parse fingerprint: %v", err)
	}
	return fp
}

func testGame(t *testing.T) domain.Game {
	return domain.Game{
		Tolerance: 2,
		Stages: []domain.Stage{
			{
				Pieces: []domain.Piece{
					{ID: "a", Fingerprint: mustFP(t, fpA)},
					{ID: "b", Fingerprint: mustFP(t, fpB), ToleranceBonus: 2},
				},
				WrongStageText:  "не тот этап 1",
				CompletionText:  "этап 1 пройден",
				CompletionImage: &domain.Image{Data: []byte("img"), Ext: "jpg"},
			},
			{
				Pieces: []domain.Piece{
					{ID: "c", Fingerprint: mustFP(t, fpC)},
					{ID: "d", Fingerprint: mustFP(t, fpD)},
				},
				WrongStageText: "не тот этап 2",
				CompletionText: "этап 2 пройден",
			},
		},
	}
}

type fixture struct {
	svc      *Service
	store    *store.RedisStore
	platform *fakes.Platform
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, _ := fakes.NewStore(t)
	p := fakes.NewPlatform()
	p.Users["frog"] = domain.User{ID: player, ScreenName: "frog", FirstName: "Hello", LastName: "Frog"}
	svc, err := NewService(st, p, fakes.Hasher{}, testGame(t), reply.New(p, reply.Delays{}, zerolog.Nop()), []int64{admin}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, store: st, platform: p}
}

func (f *fixture) send(t *testing.T, from int64, fps ...string) {
	t.Helper()
	msg := domain.Message{SenderID: from}
	for i, fp := range fps {
		msg.Attachments = append(msg.Attachments, f.platform.AddPhoto(fmt.Sprintf("https://cdn/%d/%s", i, fp), fp))
	}
	if err := f.svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func (f *fixture) stage(t *testing.T) int64 {
	t.Helper()
	v, err := f.store.HashIncr(context.Background(), StageHash, domain.Member(player), 0)
	if err != nil {
		t.Fatalf("read stage: %v", err)
	}
	return v
}

func (f *fixture) holds(t *testing.T, piece string) bool {
	t.Helper()
	ok, err := f.store.SetContains(context.Background(), PieceBucket(piece), domain.Member(player))
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	return ok
}

func TestProgressThenAdvance(t *testing.T) {
	f := newFixture(t)

	f.send(t, player, fpA)
	if got := f.platform.Joined(); got != "1/2" {
		t.Fatalf("expected 1/2, got %q", got)
	}
	if f.stage(t) != 0 {
		t.Fatalf("stage must not move yet")
	}

	f.send(t, player, fpB)
	sent := f.platform.Sent()
	if len(sent) != 2 || sent[1].Text != "этап 1 пройден" || sent[1].Attachment == "" {
		t.Fatalf("expected completion with image, got %+v", sent)
	}
	if f.stage(t) != 1 {
		t.Fatalf("expected stage 1, got %d", f.stage(t))
	}
}

func TestSeveralPiecesInOneMessage(t *testing.T) {
	f := newFixture(t)
	f.send(t, player, fpA, fpA, fpB)
	if got := f.platform.Joined(); got != "этап 1 пройден" {
		t.Fatalf("expected completion, got %q", got)
	}
}

func TestNoMatchReportsProgress(t *testing.T) {
	f := newFixture(t)
	other := fakes.Fingerprint(0x55, 0)

	f.send(t, player, other)
	f.send(t, player, fpA)
	f.send(t, player, other)
	if got := f.platform.Joined(); got != "0/2 | 1/2 | 1/2" {
		t.Fatalf("unexpected replies %q", got)
	}
}

func TestToleranceBonus(t *testing.T) {
	f := newFixture(t)

	// a допускает 2 бита, b допускает 4
	f.send(t, player, fakes.Fingerprint(0x00, 3))
	if f.holds(t, "a") {
		t.Fatal("3 bits off must not match a")
	}
	f.send(t, player, fakes.Fingerprint(0xff, 4))
	if !f.holds(t, "b") {
		t.Fatal("4 bits off must match b with bonus")
	}
}

func TestResubmittingEarlierPieceDoesNotRegress(t *testing.T) {
	f := newFixture(t)
	f.send(t, player, fpA)
	f.send(t, player, fpB)

	f.send(t, player, fpA)
	if f.stage(t) != 1 {
		t.Fatalf("stage regressed to %d", f.stage(t))
	}
	texts := f.platform.Texts()
	if texts[len(texts)-1] != "не тот этап 2" {
		t.Fatalf("expected wrong stage hint, got %v", texts)
	}
}

func TestWrongStagePieceIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.send(t, player, fpC)
	if got := f.platform.Joined(); got != "не тот этап 1" {
		t.Fatalf("expected hint, got %q", got)
	}
	if f.holds(t, "c") {
		t.Fatal("foreign piece must not be recorded")
	}
}

func TestWrongStageDiscardsCurrentMatches(t *testing.T) {
	f := newFixture(t)
	f.send(t, player, fpA, fpC)
	if f.holds(t, "a") {
		t.Fatal("current stage match must be discarded when a foreign piece follows")
	}
	if got := f.platform.Joined(); got != "не тот этап 1" {
		t.Fatalf("expected hint, got %q", got)
	}
}

func TestFinishedPlayerIsIgnored(t *testing.T) {
	f := newFixture(t)
	if err := f.store.HashSet(context.Background(), StageHash, domain.Member(player), 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	f.send(t, player, fpC)
	if len(f.platform.Sent()) != 0 || f.platform.Downloads() != 0 {
		t.Fatalf("finished player must be ignored before any download")
	}
}

func TestConcurrentFinalSubmissionRewardsOnce(t *testing.T) {
	f := newFixture(t)
	f.send(t, player, fpA)

	photo := f.platform.AddPhoto("https://cdn/final", fpB)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := domain.Message{SenderID: player, Attachments: []domain.Photo{photo}}
			if err := f.svc.Handle(context.Background(), msg); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()

	completions := 0
	for _, s := range f.platform.Sent() {
		if s.Text == "этап 1 пройден" {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("expected one completion reply, got %d", completions)
	}
	if f.stage(t) != 1 {
		t.Fatalf("expected stage 1, got %d", f.stage(t))
	}
}

func TestDownloadErrorIsSilent(t *testing.T) {
	f := newFixture(t)
	msg := domain.Message{SenderID: player, Attachments: []domain.Photo{{SourceURL: "https://cdn/missing"}}}
	if err := f.svc.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error")
	}
	if len(f.platform.Sent()) != 0 {
		t.Fatal("no reply expected")
	}
}

func TestForwardedAttachmentsCount(t *testing.T) {
	f := newFixture(t)
	msg := domain.Message{
		SenderID:  player,
		Forwarded: []domain.Message{{Attachments: []domain.Photo{f.platform.AddPhoto("https://cdn/fa", fpA)}}},
		ReplyTo:   &domain.Message{Attachments: []domain.Photo{f.platform.AddPhoto("https://cdn/fb", fpB)}},
	}
	if err := f.svc.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if f.stage(t) != 1 {
		t.Fatalf("expected stage 1, got %d", f.stage(t))
	}
}

func TestSendFailureKeepsProgress(t *testing.T) {
	f := newFixture(t)
	f.platform.SendErr = errors.New("vk is down")
	f.send(t, player, fpA)
	if !f.holds(t, "a") {
		t.Fatal("progress must survive a failed reply")
	}
}

func TestNewServiceRequiresStages(t *testing.T) {
	st, _ := fakes.NewStore(t)
	p := fakes.NewPlatform()
	if _, err := NewService(st, p, fakes.Hasher{}, domain.Game{}, reply.New(p, reply.Delays{}, zerolog.Nop()), nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
