package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
)

// FailedError возвращается для кода failed, после которого сессию не восстановить.
type FailedError struct {
	Code int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("vk: long poll failed with code %d", e.Code)
}

// Коды failed 1..3 означают устаревшие ts или key.
const maxRecoverableFailure = 3

// cursor принимает ts и строкой, и числом.
type cursor string

func (c *cursor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = cursor(n.String())
	return nil
}

type session struct {
	Key    string  `json:"key"`
	Server string  `json:"server"`
	TS     *cursor `json:"ts"`
}

type longPollResponse struct {
	TS      *cursor            `json:"ts"`
	Updates *[]json.RawMessage `json:"updates"`
	Failed  *int               `json:"failed"`
}

// Handler получает каждое разобранное сообщение.
type Handler func(msg domain.Message) error

// LongPoll держит курсор и сессию Bots Long Poll API. Не реентерабелен.
type LongPoll struct {
	client *Client
	wait   int
	log    zerolog.Logger

	key    string
	server string
	ts     string
}

// NewLongPoll создаёт цикл опроса. wait задаёт серверное ожидание в секундах.
func NewLongPoll(client *Client, wait int) *LongPoll {
	if wait <= 0 {
		wait = 25
	}
	return &LongPoll{
		client: client,
		wait:   wait,
		log:    client.log.With().Str("component", "longpoll").Logger(),
	}
}

// Start получает новую тройку key, server, ts.
func (lp *LongPoll) Start(ctx context.Context) error {
	var s session
	params := url.Values{"group_id": {strconv.FormatInt(lp.client.communityID, 10)}}
	if err := lp.client.call(ctx, "groups.getLongPollServer", params, &s); err != nil {
		return err
	}
	if s.Key == "" || s.Server == "" || s.TS == nil {
		return fmt.Errorf("%w: groups.getLongPollServer: incomplete session", ErrProtocol)
	}
	lp.key, lp.server, lp.ts = s.Key, s.Server, string(*s.TS)
	lp.log.Debug().Str("server", lp.server).Str("ts", lp.ts).Msg("longpoll: сессия получена")
	return nil
}

// Cursor возвращает текущее значение ts.
func (lp *LongPoll) Cursor() string { return lp.ts }

// PollOnce выполняет один запрос и вызывает handler для каждого сообщения
// в порядке массива updates. Ошибка handler прерывает обработку пачки.
func (lp *LongPoll) PollOnce(ctx context.Context, handler Handler) (int, error) {
	resp, err := lp.check(ctx)
	if err != nil {
		return 0, err
	}

	if resp.Failed != nil {
		code := *resp.Failed
		if code < 1 || code > maxRecoverableFailure {
			return 0, &FailedError{Code: code}
		}
		lp.log.Info().Int("failed", code).Msg("longpoll: сессия устарела, переподключаемся")
		metrics.LongPollRebootstraps.Inc()
		if err := lp.Start(ctx); err != nil {
			return 0, fmt.Errorf("longpoll: restart session: %w", err)
		}
		return 0, nil
	}

	if resp.TS == nil {
		return 0, fmt.Errorf("%w: long poll response missing ts", ErrProtocol)
	}
	lp.ts = string(*resp.TS)

	if resp.Updates == nil {
		return 0, fmt.Errorf("%w: long poll response missing updates", ErrProtocol)
	}
	processed := 0
	for _, raw := range *resp.Updates {
		metrics.LongPollUpdates.Inc()
		msg, ok := ParseUpdate(raw)
		if !ok {
			metrics.LongPollDropped.Inc()
			lp.log.Debug().RawJSON("update", raw).Msg("longpoll: апдейт пропущен")
			continue
		}
		if err := handler(msg); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (lp *LongPoll) check(ctx context.Context) (resp longPollResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("vk", "a_check", "longpoll", start, err) }()

	u, err := url.Parse(lp.server)
	if err != nil {
		return resp, fmt.Errorf("longpoll: parse server: %w", err)
	}
	q := u.Query()
	q.Set("act", "a_check")
	q.Set("key", lp.key)
	q.Set("ts", lp.ts)
	q.Set("wait", strconv.Itoa(lp.wait))
	u.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(lp.wait+10)*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return resp, fmt.Errorf("longpoll: build request: %w", err)
	}
	body, err := lp.client.do(req)
	if err != nil {
		return resp, fmt.Errorf("longpoll: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("%w: long poll response: %v", ErrProtocol, err)
	}
	return resp, nil
}
