// Package platform talks to the host-platform gateway that owns roles,
// bans, and message delivery. The verification engine only sees the
// workflow.RoleDirectory and workflow.Messenger interfaces.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"altguard/internal/workflow"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) HasRole(ctx context.Context, accountID, roleID string) (bool, error) {
	url := fmt.Sprintf("%s/members/%s/roles/%s", c.baseURL, accountID, roleID)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d checking role", resp.StatusCode)
	}
}

func (c *Client) GrantRole(ctx context.Context, accountID, roleID string) error {
	url := fmt.Sprintf("%s/members/%s/roles/%s", c.baseURL, accountID, roleID)
	resp, err := c.do(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d granting role", resp.StatusCode)
	}
	return nil
}

func (c *Client) Ban(ctx context.Context, accountID, reason string) error {
	url := fmt.Sprintf("%s/members/%s/ban", c.baseURL, accountID)
	body := map[string]string{"reason": reason}
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d banning account", resp.StatusCode)
	}
	return nil
}

func (c *Client) SendAccount(ctx context.Context, accountID, message string) error {
	url := fmt.Sprintf("%s/members/%s/messages", c.baseURL, accountID)
	return c.send(ctx, url, message)
}

func (c *Client) SendStaff(ctx context.Context, channelID, message string) error {
	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)
	return c.send(ctx, url, message)
}

func (c *Client) send(ctx context.Context, url, message string) error {
	body := map[string]string{"content": message}
	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusForbidden:
		// The recipient blocks delivery (closed DMs and the like).
		return workflow.ErrDeliveryRefused
	default:
		return fmt.Errorf("unexpected status %d delivering message", resp.StatusCode)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request failed: %w", err)
	}
	return resp, nil
}
