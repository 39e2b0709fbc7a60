package vk

import (
	"encoding/json"

	"vk-quest-bot/internal/domain"
)

// allowedSizes перечисляет коды размеров, из которых выбирается preview.
var allowedSizes = map[string]bool{"m": true, "x": true, "y": true, "z": true, "w": true}

type rawUpdate struct {
	Type   string `json:"type"`
	Object *struct {
		Message *rawMessage `json:"message"`
	} `json:"object"`
}

type rawMessage struct {
	Text         string          `json:"text"`
	FromID       *int64          `json:"from_id"`
	Attachments  []rawAttachment `json:"attachments"`
	FwdMessages  []rawMessage    `json:"fwd_messages"`
	ReplyMessage *rawMessage     `json:"reply_message"`
}

type rawAttachment struct {
	Type  string    `json:"type"`
	Photo *rawPhoto `json:"photo"`
	Doc   *struct {
		Preview *struct {
			Photo *rawPhoto `json:"photo"`
		} `json:"preview"`
	} `json:"doc"`
}

type rawPhoto struct {
	Sizes []rawSize `json:"sizes"`
}

type rawSize struct {
	Type  string `json:"type"`
	Width int    `json:"width"`
	URL   string `json:"url"`
	Src   string `json:"src"`
}

// ParseUpdate превращает событие long poll в сообщение. Возвращает false,
// если в событии нет сообщения или отправителя.
func ParseUpdate(raw json.RawMessage) (domain.Message, bool) {
	var upd rawUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		return domain.Message{}, false
	}
	if upd.Object == nil || upd.Object.Message == nil || upd.Object.Message.FromID == nil {
		return domain.Message{}, false
	}
	return convertMessage(upd.Object.Message), true
}

// convertMessage рекурсивно обходит пересланные сообщения и ответ.
// У вложенных сообщений отсутствующий from_id читается как 0.
func convertMessage(m *rawMessage) domain.Message {
	msg := domain.Message{Text: m.Text}
	if m.FromID != nil {
		msg.SenderID = *m.FromID
	}
	for i := range m.Attachments {
		if p, ok := convertAttachment(&m.Attachments[i]); ok {
			msg.Attachments = append(msg.Attachments, p)
		}
	}
	for i := range m.FwdMessages {
		msg.Forwarded = append(msg.Forwarded, convertMessage(&m.FwdMessages[i]))
	}
	if m.ReplyMessage != nil {
		reply := convertMessage(m.ReplyMessage)
		msg.ReplyTo = &reply
	}
	return msg
}

func convertAttachment(a *rawAttachment) (domain.Photo, bool) {
	switch {
	case a.Photo != nil:
		return pickSize(a.Photo.Sizes)
	case a.Doc != nil && a.Doc.Preview != nil && a.Doc.Preview.Photo != nil:
		return pickSize(a.Doc.Preview.Photo.Sizes)
	default:
		return domain.Photo{}, false
	}
}

// pickSize выбирает самый узкий размер из допустимых.
func pickSize(sizes []rawSize) (domain.Photo, bool) {
	best := -1
	bestURL := ""
	for i, s := range sizes {
		if !allowedSizes[s.Type] {
			continue
		}
		u := s.URL
		if u == "" {
			u = s.Src
		}
		if u == "" {
			continue
		}
		if best == -1 || s.Width < sizes[best].Width {
			best = i
			bestURL = u
		}
	}
	if best == -1 {
		return domain.Photo{}, false
	}
	return domain.Photo{SourceURL: bestURL}, true
}
