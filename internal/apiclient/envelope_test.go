package apiclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonResponse(status int, body string) *RawResponse {
	return &RawResponse{
		Status: status,
		Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}},
		Body:   []byte(body),
	}
}

func TestNormalize_Success(t *testing.T) {
	env, err := normalize(jsonResponse(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1","role":"teacher"}},"message":"ok"}`))
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "ok", env.Message)

	u, err := decodeUser(env)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "teacher", u.Role.String())
}

func TestNormalize_StatusFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
		is      error
	}{
		{"validation 400", http.StatusBadRequest, `{"success":false,"message":"Email is required"}`, KindValidation, "Email is required", ErrValidation},
		{"validation 422", http.StatusUnprocessableEntity, `{"success":false}`, KindValidation, "Request failed", ErrValidation},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"message":"Invalid credentials"}`, KindAuthInvalid, "Invalid credentials", ErrAuthInvalid},
		{"not found", http.StatusNotFound, `{"success":false,"message":"School not found"}`, KindAPI, "School not found", ErrAPI},
		{"server error html", http.StatusInternalServerError, `<html>oops</html>`, KindAPI, "Request failed", ErrAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := jsonResponse(tt.status, tt.body)
			if tt.body[0] == '<' {
				resp.Header.Set("Content-Type", "text/html")
			}

			_, err := normalize(resp)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.ErrorIs(t, err, tt.is)
			assert.NotErrorIs(t, err, ErrNetwork)
		})
	}
}

func TestNormalize_SuccessFalseWith200(t *testing.T) {
	_, err := normalize(jsonResponse(http.StatusOK, `{"success":false,"message":"Username taken"}`))
	require.Error(t, err)
	assert.Equal(t, "Username taken", MessageOf(err, "fallback"))
	assert.ErrorIs(t, err, ErrAPI)
}

func TestNormalize_KeepsValidationDetails(t *testing.T) {
	_, err := normalize(jsonResponse(http.StatusBadRequest, `{"success":false,"message":"Validation failed","errors":[{"field":"email"}]}`))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.JSONEq(t, `[{"field":"email"}]`, string(apiErr.Details))
}

func TestNormalize_MalformedSuccessBody(t *testing.T) {
	_, err := normalize(jsonResponse(http.StatusOK, `{"success":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestNormalize_NonJSONSuccess(t *testing.T) {
	env, err := normalize(&RawResponse{Status: http.StatusNoContent, Header: http.Header{}})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Empty(t, env.Data)
}

func TestEnvelope_DecodeEmptyData(t *testing.T) {
	env := &Envelope{Success: true, Data: []byte("null")}
	var v map[string]any
	assert.Error(t, env.Decode(&v))
}

func TestMessageOf_NetworkErrorUsesFallback(t *testing.T) {
	err := &NetworkError{Op: "POST /auth/login", Err: errors.New("connection refused")}
	assert.Equal(t, "Login failed. Please try again.", MessageOf(err, "Login failed. Please try again."))
}
