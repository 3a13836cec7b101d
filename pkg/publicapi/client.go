package publicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

const applicationsPath = "/api/public/applications"

// Submission is the reduced application accepted by the public surface.
type Submission struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone"`
	Course         string `json:"course"`
	PreferredStart string `json:"preferredStart,omitempty"`
}

type itemEnvelope struct {
	Item map[string]any `json:"item"`
}

type itemsEnvelope struct {
	Items []map[string]any `json:"items"`
}

// Client talks to the public applications REST surface used when the
// relational store cannot be reached.
type Client struct {
	http   *resty.Client
	base   string
	logger *zap.Logger
}

// NewClient builds a client. An empty baseURL yields a disabled client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only reads are retried.
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, base: base, logger: logger}
}

// Enabled reports whether a base URL was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.base != ""
}

// Submit posts an application and returns the stored item.
func (c *Client) Submit(ctx context.Context, sub Submission) (map[string]any, error) {
	if !c.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "public api not configured")
	}
	var envelope itemEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sub).
		SetResult(&envelope).
		Post(applicationsPath)
	if err != nil {
		c.logger.Warn("public api submit failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrNetworkUnavailable, "public api unreachable")
	}
	if resp.IsError() {
		return nil, c.remoteFailure(resp)
	}
	if envelope.Item == nil {
		return nil, appErrors.Wrap(&appErrors.RemoteError{Message: "public api returned no item"}, appErrors.ErrSchemaRejection, "public api returned no item")
	}
	return envelope.Item, nil
}

// List fetches every application known to the public surface.
func (c *Client) List(ctx context.Context) ([]map[string]any, error) {
	if !c.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrNetworkUnavailable, "public api not configured")
	}
	var envelope itemsEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(applicationsPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNetworkUnavailable, "public api unreachable")
	}
	if resp.IsError() {
		return nil, c.remoteFailure(resp)
	}
	if envelope.Items == nil {
		return []map[string]any{}, nil
	}
	return envelope.Items, nil
}

// remoteFailure turns an error response into a typed error. Gateway errors
// count as unreachable; everything else is a rejection of the payload.
func (c *Client) remoteFailure(resp *resty.Response) error {
	remote := decodeRemoteError(resp.Body())
	if remote.Code == "" {
		remote.Code = fmt.Sprintf("%d", resp.StatusCode())
	}
	c.logger.Warn("public api rejected request",
		zap.Int("status_code", resp.StatusCode()),
		zap.String("message", appErrors.HumanMessage(remote)),
	)
	switch resp.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return appErrors.Wrap(remote, appErrors.ErrNetworkUnavailable, "public api unavailable")
	case http.StatusConflict:
		return appErrors.Wrap(remote, appErrors.ErrConflict, "already exists")
	default:
		return appErrors.Wrap(remote, appErrors.ErrSchemaRejection, appErrors.HumanMessage(remote))
	}
}

func decodeRemoteError(body []byte) *appErrors.RemoteError {
	remote := &appErrors.RemoteError{}
	var nested struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && len(nested.Error) > 0 {
		if json.Unmarshal(nested.Error, remote) == nil {
			return remote
		}
		var msg string
		if json.Unmarshal(nested.Error, &msg) == nil {
			remote.Message = msg
			return remote
		}
	}
	if err := json.Unmarshal(body, remote); err == nil {
		return remote
	}
	remote.Details = strings.TrimSpace(string(body))
	return remote
}
