package vk

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// Send отправляет сообщение; attachment может быть пустым.
func (c *Client) Send(ctx context.Context, peerID int64, text, attachment string) error {
	params := url.Values{
		"peer_id":   {strconv.FormatInt(peerID, 10)},
		"message":   {text},
		"random_id": {strconv.FormatInt(randomID(), 10)},
	}
	if attachment != "" {
		params.Set("attachment", attachment)
	}
	if err := c.call(ctx, "messages.send", params, nil); err != nil {
		return err
	}
	c.log.Debug().Int64("peer_id", peerID).Str("attachment", attachment).Msg("vk: сообщение отправлено")
	return nil
}

// randomID защищает от повторной доставки одного и того же запроса.
func randomID() int64 {
	return int64(uuid.New().ID() >> 1)
}
