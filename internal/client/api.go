package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/tankctl/internal/errors"
	"codeberg.org/mutker/tankctl/internal/tank"
)

const DefaultRequestTimeout = 5 * time.Second

// API is the REST half of the server connection.
type API struct {
	base string
	http *http.Client
}

func NewAPI(base string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &API{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// History fetches the served history, oldest first.
func (a *API) History(ctx context.Context) ([]tank.Reading, error) {
	var readings []tank.Reading
	if err := a.do(ctx, http.MethodGet, "/api/history", nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// SetMotor returns the motor state the server settled on.
func (a *API) SetMotor(ctx context.Context, on bool) (bool, error) {
	var resp struct {
		MotorOn bool `json:"motorOn"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/motor", map[string]bool{"state": on}, &resp); err != nil {
		return false, err
	}
	return resp.MotorOn, nil
}

func (a *API) Reset(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/reset", nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	errFactory := errors.New()

	var payload *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, payload)
	if err != nil {
		return errFactory.Wrap(ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(ErrUnexpectedCode, fmt.Sprintf("%s %s: %s", method, path, resp.Status))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errFactory.Wrap(ErrDecodeResponse, err)
	}
	return nil
}
