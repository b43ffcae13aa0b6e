package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/event"
	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// fakeSource builds unstarted controllers and records which ids it saw.
type fakeSource struct {
	mu   sync.Mutex
	ctls map[string]*session.Controller
	seen []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{ctls: make(map[string]*session.Controller)}
}

func (s *fakeSource) Get(_ context.Context, sid string) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, sid)
	if ctl, ok := s.ctls[sid]; ok {
		return ctl
	}
	exec := apiclient.NewExecutor("http://127.0.0.1:1/api", httpclient.New(httpclient.DefaultConfig()))
	client := apiclient.NewClient(tokenstore.NewMemory(), exec, testLogger())
	ctl := session.NewController(sid, apiclient.NewAPI(client), event.Nop{}, testLogger())
	s.ctls[sid] = ctl
	return ctl
}
