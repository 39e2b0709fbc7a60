package stone

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/usecase/reply"
)

const (
	startUsage   = "Отправь ссылку на страницу пользователя в формате vk.com/name"
	userNotFound = "Пользователь %s не найден. " + startUsage
	userUsage    = "%s\nНапиши \"этап n\", чтобы перевести пользователя на другой этап (например, \"этап 2\").\nНапиши \"отмена\", чтобы выбрать другого пользователя.\n"
	badStage     = "Пришли номер этапа как число, например, \"этап 2\""
	stageSet     = "%s теперь на этапе %d"

	cancelCommand = "отмена"
	stageCommand  = "этап "
)

// AdminDialog позволяет администратору вручную сменить этап игрока.
// У каждого администратора своя сессия; сессии живут до перезапуска.
type AdminDialog struct {
	store  domain.ProgressStore
	users  domain.UserDirectory
	reply  *reply.Replier
	stages int

	mu      sync.Mutex
	editing map[int64]*domain.User
}

// NewAdminDialog создаёт диалог, в котором все администраторы ждут ссылку.
func NewAdminDialog(store domain.ProgressStore, users domain.UserDirectory, replier *reply.Replier, stages int) *AdminDialog {
	return &AdminDialog{store: store, users: users, reply: replier, stages: stages, editing: make(map[int64]*domain.User)}
}

// Handle обрабатывает сообщение администратора.
func (d *AdminDialog) Handle(ctx context.Context, msg domain.Message) error {
	text := strings.TrimSpace(msg.Text)
	user := d.current(msg.SenderID)
	if user == nil {
		return d.pickUser(ctx, msg.SenderID, text)
	}

	lower := strings.ToLower(text)
	switch {
	case lower == cancelCommand:
		d.set(msg.SenderID, nil)
		d.reply.Now(ctx, msg.SenderID, startUsage)
	case strings.HasPrefix(lower, stageCommand):
		n, err := strconv.Atoi(strings.TrimSpace(lower[len(stageCommand):]))
		if err != nil || n < 1 || n > d.stages {
			d.reply.Now(ctx, msg.SenderID, badStage)
			return nil
		}
		if err := d.store.HashSet(ctx, StageHash, domain.Member(user.ID), int64(n-1)); err != nil {
			return err
		}
		d.set(msg.SenderID, nil)
		d.reply.Now(ctx, msg.SenderID, fmt.Sprintf(stageSet, user, n))
	default:
		d.reply.Now(ctx, msg.SenderID, fmt.Sprintf(userUsage, user))
	}
	return nil
}

func (d *AdminDialog) pickUser(ctx context.Context, peerID int64, text string) error {
	screen, ok := ScreenName(text)
	if !ok {
		d.reply.Now(ctx, peerID, startUsage)
		return nil
	}
	user, err := d.users.LookupUser(ctx, screen)
	if err != nil {
		return err
	}
	if user == nil {
		d.reply.Now(ctx, peerID, fmt.Sprintf(userNotFound, screen))
		return nil
	}
	d.set(peerID, user)
	d.reply.Now(ctx, peerID, fmt.Sprintf(userUsage, user))
	return nil
}

func (d *AdminDialog) current(adminID int64) *domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editing[adminID]
}

func (d *AdminDialog) set(adminID int64, u *domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u == nil {
		delete(d.editing, adminID)
		return
	}
	d.editing[adminID] = u
}

// ScreenName достаёт короткое имя из ссылки vk.com/name.
func ScreenName(link string) (string, bool) {
	s := strings.TrimSpace(link)
	for _, p := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimPrefix(s, "m.")
	s, ok := strings.CutPrefix(s, "vk.com/")
	if !ok {
		return "", false
	}
	s = strings.TrimSuffix(s, "/")
	if s == "" || strings.ContainsAny(s, "/ ") {
		return "", false
	}
	return s, true
}
