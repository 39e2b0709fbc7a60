package domain

import (
	"fmt"
	"strconv"
)

// Photo описывает вложение, сведённое к одному URL preview-картинки.
type Photo struct {
	SourceURL string
}

// Message представляет входящее сообщение сообщества.
// Пересланные сообщения и ответ образуют дерево без циклов.
type Message struct {
	Text        string
	SenderID    int64
	Attachments []Photo
	Forwarded   []Message
	ReplyTo     *Message
}

// AllAttachments возвращает все фото, достижимые из сообщения:
// собственные, затем пересланных (рекурсивно), затем цепочки ответа.
func (m *Message) AllAttachments() []Photo {
	var out []Photo
	appendAttachments(m, &out)
	return out
}

func appendAttachments(m *Message, out *[]Photo) {
	*out = append(*out, m.Attachments...)
	for i := range m.Forwarded {
		appendAttachments(&m.Forwarded[i], out)
	}
	if m.ReplyTo != nil {
		appendAttachments(m.ReplyTo, out)
	}
}

// User описывает пользователя платформы.
type User struct {
	ID         int64
	ScreenName string
	FirstName  string
	LastName   string
}

func (u User) String() string {
	return fmt.Sprintf("%s %s (@%s, id %d)", u.FirstName, u.LastName, u.ScreenName, u.ID)
}

// Member кодирует идентификатор пользователя как член множества или поле хэша.
func Member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Image хранит картинку для загрузки в ответ.
type Image struct {
	Data []byte
	Ext  string
}
