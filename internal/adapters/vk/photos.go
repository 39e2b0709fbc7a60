package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vk-quest-bot/internal/domain"
	"vk-quest-bot/internal/infra/metrics"
)

type uploadServer struct {
	UploadURL string `json:"upload_url"`
}

type uploadResponse struct {
	Server int64  `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

type savedPhoto struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"owner_id"`
}

// DownloadPhoto скачивает картинку по URL вложения.
func (c *Client) DownloadPhoto(ctx context.Context, photo domain.Photo) (_ []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("vk", "download_photo", "cdn", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photo.SourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vk: download photo: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("vk: download photo: %w", err)
	}
	return body, nil
}

// UploadMessagePhoto загружает картинку для сообщения пользователю peerID и
// возвращает ссылку вида photo{owner}_{id}. Загрузка повторяется один раз.
func (c *Client) UploadMessagePhoto(ctx context.Context, peerID int64, img domain.Image) (string, error) {
	upload, err := c.uploadPhoto(ctx, peerID, img)
	if err != nil {
		c.log.Warn().Err(err).Int64("peer_id", peerID).Msg("vk: загрузка фото не удалась, повторяем")
		upload, err = c.uploadPhoto(ctx, peerID, img)
		if err != nil {
			return "", err
		}
	}

	var saved []savedPhoto
	params := url.Values{
		"server": {strconv.FormatInt(upload.Server, 10)},
		"photo":  {upload.Photo},
		"hash":   {upload.Hash},
	}
	if err := c.call(ctx, "photos.saveMessagesPhoto", params, &saved); err != nil {
		return "", err
	}
	if len(saved) != 1 || saved[0].ID == 0 {
		return "", fmt.Errorf("%w: photos.saveMessagesPhoto: unexpected response", ErrProtocol)
	}
	return fmt.Sprintf("photo%d_%d", saved[0].OwnerID, saved[0].ID), nil
}

func (c *Client) uploadPhoto(ctx context.Context, peerID int64, img domain.Image) (resp uploadResponse, err error) {
	var srv uploadServer
	params := url.Values{"peer_id": {strconv.FormatInt(peerID, 10)}}
	if err := c.call(ctx, "photos.getMessagesUploadServer", params, &srv); err != nil {
		return resp, err
	}
	if srv.UploadURL == "" {
		return resp, fmt.Errorf("%w: photos.getMessagesUploadServer: missing upload_url", ErrProtocol)
	}

	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("vk", "upload_photo", "upload", start, err) }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	ext := img.Ext
	if ext == "" {
		ext = "jpg"
	}
	part, err := mw.CreateFormFile("photo", "photo."+ext)
	if err != nil {
		return resp, fmt.Errorf("vk: upload photo: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return resp, fmt.Errorf("vk: upload photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return resp, fmt.Errorf("vk: upload photo: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.UploadURL, &buf)
	if err != nil {
		return resp, fmt.Errorf("vk: upload photo: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	body, err := c.do(req)
	if err != nil {
		return resp, fmt.Errorf("vk: upload photo: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("vk: upload photo: decode: %w", err)
	}
	if resp.Photo == "" || resp.Photo == "[]" {
		return resp, fmt.Errorf("%w: upload photo: empty photo", ErrProtocol)
	}
	return resp, nil
}
