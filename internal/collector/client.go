// Package collector talks to the waste-collection tracking API on behalf of
// the simulated collector.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"collector-simulator/internal/route"
	"collector-simulator/internal/sim"
)

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	hc      *fasthttp.Client
	log     *slog.Logger
	now     func() time.Time
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		hc: &fasthttp.Client{
			Name:                "collector-simulator",
			MaxIdleConnDuration: time.Minute,
		},
		log: slog.Default().With("component", "collector"),
		now: time.Now,
	}
}

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Token() string { return c.token }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out loginResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/api/collector/login", loginRequest{username, password}, &out, false); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("login: empty token in response")
	}
	c.token = out.Token
	return out.Token, nil
}

type locationRequest struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type LocationResponse struct {
	Message string `json:"message"`
}

func (c *Client) UpdateLocation(ctx context.Context, lon, lat float64) (LocationResponse, error) {
	var out LocationResponse
	err := c.do(ctx, fasthttp.MethodPost, "/api/collector/location", locationRequest{lon, lat}, &out, true)
	return out, err
}

// ReportPosition satisfies sim.Reporter.
func (c *Client) ReportPosition(ctx context.Context, pos route.Coordinate) (sim.Ack, error) {
	resp, err := c.UpdateLocation(ctx, pos.Lon(), pos.Lat())
	if err != nil {
		return sim.Ack{}, err
	}
	msg := resp.Message
	if msg == "" {
		msg = "updated"
	}
	return sim.Ack{Message: msg}, nil
}

type fillLevelRequest struct {
	FillLevel     int    `json:"fillLevel"`
	LastCollected string `json:"lastCollected"`
}

type directUpdateRequest struct {
	BinID   string         `json:"binId"`
	Updates map[string]int `json:"updates"`
}

// ResetBinFillLevels sets each bin's fill level before a run. A bin whose
// regular update fails is retried once through the direct-update endpoint;
// bins that fail both are reported in the joined error.
func (c *Client) ResetBinFillLevels(ctx context.Context, levels map[string]int) error {
	ids := make([]string, 0, len(levels))
	for id := range levels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.log.Info("resetting bin fill levels", "bins", len(ids))
	var errs []error
	for _, id := range ids {
		level := levels[id]
		path := "/api/bins/" + url.PathEscape(id) + "/update-fill-level"
		body := fillLevelRequest{FillLevel: level, LastCollected: c.now().Format(time.RFC3339)}
		err := c.do(ctx, fasthttp.MethodPut, path, body, nil, true)
		if err == nil {
			c.log.Info("bin fill level reset", "bin", id, "level", level)
			continue
		}
		c.log.Warn("bin fill level update failed, trying direct update", "bin", id, "err", err)

		fallback := directUpdateRequest{BinID: id, Updates: map[string]int{"fillLevel": level}}
		if ferr := c.do(ctx, fasthttp.MethodPost, "/api/bins/direct-update", fallback, nil, true); ferr != nil {
			c.log.Error("all attempts to update bin failed", "bin", id, "err", ferr)
			errs = append(errs, fmt.Errorf("bin %s: %w", id, errors.Join(err, ferr)))
			continue
		}
		c.log.Info("bin fill level reset via direct update", "bin", id, "level", level)
	}
	return errors.Join(errs...)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if auth && c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.SetBody(b)
	}

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	if err := c.hc.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return &StatusError{Method: method, Path: path, Status: status, Body: string(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		// the location endpoint is allowed to answer with plain text
		c.log.Debug("non-JSON response body", "path", path, "err", err)
	}
	return nil
}
