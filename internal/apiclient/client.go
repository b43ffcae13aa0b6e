package apiclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
)

// Client is the authenticated client of one portal session. It reads the
// access token from the store on every call, so a replay after a refresh
// always observes the new token.
type Client struct {
	store tokenstore.Store
	exec  *Executor
	coord *Coordinator
}

// NewClient creates a Client over store and exec with its own refresh
// coordinator.
func NewClient(store tokenstore.Store, exec *Executor, logger *slog.Logger) *Client {
	return &Client{
		store: store,
		exec:  exec,
		coord: NewCoordinator(store, exec, logger),
	}
}

// Store returns the token store the client reads from.
func (c *Client) Store() tokenstore.Store { return c.store }

// OnExpired sets the hook called once per terminally failed refresh.
func (c *Client) OnExpired(hook ExpiredHook) { c.coord.OnExpired(hook) }

// Refreshing reports whether this session has a refresh in flight.
func (c *Client) Refreshing() bool { return c.coord.Refreshing() }

// Do sends req and handles token expiry. A 401 for a request that carried a
// token triggers (or joins) a refresh and the request is replayed exactly
// once with the new token; whatever the replay returns is final. A 401 for
// an anonymous request fails with ErrAuthInvalid straight away.
func (c *Client) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	var access string
	if !req.Anonymous {
		var err error
		if access, err = c.store.Access(ctx); err != nil {
			return nil, fmt.Errorf("read access token: %w", err)
		}
	}

	resp, err := c.exec.Execute(ctx, req, access)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, nil
	}
	if access == "" {
		_, err := normalize(resp)
		return nil, err
	}

	trigger := &APIError{
		Status:  resp.Status,
		Message: MessageOf(errorFrom(resp), defaultFailureMessage),
		Kind:    KindAuthExpired,
	}
	fresh, err := c.coord.Await(ctx, access, trigger)
	if err != nil {
		return nil, err
	}
	return c.exec.Execute(ctx, req, fresh)
}

// Call sends req through Do and normalizes the response.
func (c *Client) Call(ctx context.Context, req *Request) (*Envelope, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return normalize(resp)
}

func errorFrom(resp *RawResponse) error {
	_, err := normalize(resp)
	return err
}
