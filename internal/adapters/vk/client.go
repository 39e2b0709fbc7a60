package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vk-quest-bot/internal/infra/metrics"
)

const (
	defaultAPIURL  = "https://api.vk.com/method/"
	defaultVersion = "5.103"
)

// APIError описывает ошибку, которую вернул метод API.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk: api error %d: %s", e.Code, e.Message)
}

// ErrProtocol означает ответ без обязательных полей.
var ErrProtocol = errors.New("vk: protocol error")

// Options задаёт параметры клиента.
type Options struct {
	APIURL  string
	Version string
	Timeout time.Duration
}

// Client вызывает методы API сообщества.
type Client struct {
	http    *http.Client
	apiURL  string
	version string
	token   string
	log     zerolog.Logger

	communityID   int64
	communityName string
}

// NewClient создаёт клиента. Timeout должен превышать ожидание long poll.
func NewClient(token string, opts Options, logger zerolog.Logger) *Client {
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if !strings.HasSuffix(opts.APIURL, "/") {
		opts.APIURL += "/"
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		apiURL:  opts.APIURL,
		version: opts.Version,
		token:   token,
		log:     logger.With().Str("component", "vk").Logger(),
	}
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

// call выполняет метод и декодирует поле response в out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("vk", method, "api", start, err) }()

	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("v", c.version)
	form.Set("access_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("vk: %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("vk: %s: %w", method, err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("vk: %s: decode response: %w", method, err)
	}
	if env.Error != nil {
		return env.Error
	}
	if len(env.Response) == 0 {
		return fmt.Errorf("%w: %s: missing response", ErrProtocol, method)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("vk: %s: decode response: %w", method, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

type community struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Init загружает сообщество, к которому привязан токен.
func (c *Client) Init(ctx context.Context) error {
	var groups []community
	if err := c.call(ctx, "groups.getById", url.Values{}, &groups); err != nil {
		return err
	}
	if len(groups) != 1 {
		return fmt.Errorf("vk: token must be linked to exactly one community, got %d", len(groups))
	}
	if groups[0].ID == 0 || groups[0].Name == "" {
		return fmt.Errorf("%w: groups.getById: community without id or name", ErrProtocol)
	}
	c.communityID = groups[0].ID
	c.communityName = groups[0].Name
	c.log.Info().Int64("community_id", c.communityID).Str("community", c.communityName).Msg("vk: сообщество загружено")
	return nil
}

// CommunityID возвращает id сообщества после Init.
func (c *Client) CommunityID() int64 { return c.communityID }

func (c *Client) String() string {
	return fmt.Sprintf("Community %q (id %d)", c.communityName, c.communityID)
}
