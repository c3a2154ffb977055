// Package upload is the fire-and-forget HTTP side-channel for files and
// avatars. Only success/failure and the correlation id matter to the session
// core; the confirmed message arrives later as a chat_broadcast.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/simplechannel/client/internal/domain"
)

type Client struct {
	base  string
	token func() string
	http  *http.Client
}

func New(baseURL string, token func() string) *Client {
	return &Client{
		base:  baseURL,
		token: token,
		http:  &http.Client{},
	}
}

// File posts a channel upload carrying the client correlation id so the
// eventual chat_broadcast can be matched to the pending placeholder.
func (c *Client) File(ctx context.Context, r io.Reader, filename string, channelID domain.ChannelID, clientMsgID string) error {
	fields := map[string]string{
		"channel_id":    strconv.FormatInt(int64(channelID), 10),
		"client_msg_id": clientMsgID,
	}
	return c.post(ctx, "/api/files/upload", "file", filename, r, fields)
}

// Avatar replaces the user's avatar; the roster update arrives over the
// session transport.
func (c *Client) Avatar(ctx context.Context, r io.Reader, filename string) error {
	return c.post(ctx, "/api/user/avatar", "avatar", filename, r, nil)
}

func (c *Client) post(ctx context.Context, path, field, filename string, r io.Reader, fields map[string]string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().Str("module", "upload").Int("status", resp.StatusCode).Str("path", path).Msg("upload rejected")
		return fmt.Errorf("upload failed: %s: %s", resp.Status, msg)
	}
	return nil
}
