// Package provisioning talks to the account provisioning service that
// creates credentials for approved orders.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/marshallcc/purchase-bot/internal/order/application"
	"github.com/marshallcc/purchase-bot/internal/order/domain"
)

type Client struct {
	log     *slog.Logger
	baseURL string
	httpc   *http.Client
	mock    bool
}

// New returns a client for the provisioning API. With mock enabled every
// issue call succeeds locally without a network hop.
func New(log *slog.Logger, baseURL string, mock bool) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		mock:    mock,
	}
}

type issueRequest struct {
	Region string `json:"region"`
	Handle string `json:"handle"`
	Secret string `json:"secret"`
}

func (c *Client) IssueCredential(ctx context.Context, region domain.Region, handle, secret string) error {
	if c.mock {
		c.log.Info("mock credential issued", "region", region, "handle", handle)
		return nil
	}

	body, err := json.Marshal(issueRequest{Region: string(region), Handle: handle, Secret: secret})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/credentials", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", application.ErrHandleTaken, handle)
	case resp.StatusCode >= 300:
		return fmt.Errorf("provisioning returned %d", resp.StatusCode)
	}
	return nil
}
