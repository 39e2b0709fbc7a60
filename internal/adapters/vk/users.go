package vk

import (
	"context"
	"errors"
	"net/url"

	"vk-quest-bot/internal/domain"
)

// errInvalidUserID возвращается API для несуществующего screen_name.
const errInvalidUserID = 113

type rawUser struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// LookupUser ищет пользователя по короткому имени. Возвращает nil, если его нет.
func (c *Client) LookupUser(ctx context.Context, screenName string) (*domain.User, error) {
	var users []rawUser
	params := url.Values{"user_ids": {screenName}, "fields": {"screen_name"}}
	if err := c.call(ctx, "users.get", params, &users); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == errInvalidUserID {
			return nil, nil
		}
		return nil, err
	}
	if len(users) != 1 {
		return nil, nil
	}
	u := users[0]
	return &domain.User{ID: u.ID, ScreenName: u.ScreenName, FirstName: u.FirstName, LastName: u.LastName}, nil
}

var _ domain.Platform = (*Client)(nil)
