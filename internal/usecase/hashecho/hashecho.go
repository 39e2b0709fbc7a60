// Package hashecho помогает готовить игру: отвечает отпечатком каждой присланной картинки.
package hashecho

import (
	"context"
	"strings"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/usecase/reply"
)

const noImages = "No images received"

type Behavior struct {
	photos domain.PhotoTransport
	hasher domain.Hasher
	reply  *reply.Replier
}

func New(photos domain.PhotoTransport, hasher domain.Hasher, replier *reply.Replier) *Behavior {
	return &Behavior{photos: photos, hasher: hasher, reply: replier}
}

func (b *Behavior) Name() string { return "hash" }

func (b *Behavior) Handle(ctx context.Context, msg domain.Message) error {
	atts := msg.AllAttachments()
	if len(atts) == 0 {
		b.reply.Now(ctx, msg.SenderID, noImages)
		return nil
	}
	lines := make([]string, 0, len(atts))
	for _, att := range atts {
		raw, err := b.photos.DownloadPhoto(ctx, att)
		if err != nil {
			return err
		}
		fp, err := b.hasher.Hash(raw)
		if err != nil {
			return err
		}
		lines = append(lines, "Hash: "+fp.String())
	}
	b.reply.Now(ctx, msg.SenderID, strings.Join(lines, "\n"))
	return nil
}
