package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultFailureMessage = "Request failed"

// Envelope is the {success, data, message} wrapper of every backend response.
type Envelope struct {
	Status  int             `json:"-"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// Decode unmarshals the data member into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return fmt.Errorf("decode envelope data: %w", errEmptyData)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

var errEmptyData = &APIError{Status: http.StatusBadGateway, Message: "response carried no data", Kind: KindAPI}

// normalize turns a raw response into an Envelope, or into an *APIError when
// the status is >= 400 or the envelope reports success:false.
func normalize(resp *RawResponse) (*Envelope, error) {
	env := &Envelope{Status: resp.Status}

	decoded := false
	if resp.IsJSON() && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, env); err == nil {
			decoded = true
		} else if resp.Status < 400 {
			return nil, &APIError{
				Status:  resp.Status,
				Message: "malformed response from server",
				Kind:    KindAPI,
				Err:     err,
			}
		}
	}

	if resp.Status >= 400 {
		msg := env.Message
		if msg == "" {
			msg = defaultFailureMessage
		}
		return nil, &APIError{
			Status:  resp.Status,
			Message: msg,
			Kind:    kindForStatus(resp.Status),
			Details: env.Errors,
		}
	}

	if !decoded {
		// Non-JSON success bodies (file downloads, empty 204s) carry no envelope.
		env.Success = true
		return env, nil
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = defaultFailureMessage
		}
		return nil, &APIError{
			Status:  resp.Status,
			Message: msg,
			Kind:    KindAPI,
			Details: env.Errors,
		}
	}

	return env, nil
}
