// Package push is the out-of-band command transport: a fire-and-forget
// structured command POSTed to the device's configured push endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"smsrelay/internal/device"
	logx "smsrelay/pkg/logx"
)

var ErrNotConfigured = errors.New("push: device has no push endpoint")

type Client struct {
	http *http.Client
	log  logx.Logger
}

func New(timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{http: &http.Client{Timeout: timeout}, log: log}
}

type commandBody struct {
	Device  string `json:"device"`
	Command string `json:"command"`
	At      string `json:"at"`
}

// SendCommand posts a structured command to the device's push endpoint.
// Fire-and-forget: the device acts on it whenever it next syncs; there is
// no delivery acknowledgement beyond the HTTP status.
func (c *Client) SendCommand(ctx context.Context, dev device.Device, command string) error {
	if dev.PushURL == "" {
		return ErrNotConfigured
	}

	b, err := json.Marshal(commandBody{
		Device:  dev.ID,
		Command: command,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dev.PushURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if dev.PushToken != "" {
		req.Header.Set("Authorization", "Bearer "+dev.PushToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push: endpoint returned %d", resp.StatusCode)
	}
	c.log.Debug("command pushed", logx.String("device", dev.ID), logx.String("command", command))
	return nil
}
