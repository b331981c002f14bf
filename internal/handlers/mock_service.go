package handlers

import (
	"context"
	"sync"

	"smart_bottle/internal/display"
	"smart_bottle/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockControl struct {
	mu        sync.Mutex
	drags     []float64
	commits   []float64
	syncs     []float64
	commitErr error // delivered before Commit returns
}

func (m *mockControl) Drag(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drags = append(m.drags, v)
}

func (m *mockControl) Sync(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, v)
}

func (m *mockControl) Commit(ctx context.Context, v float64) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, v)
	res := make(chan error, 1)
	res <- m.commitErr
	return res
}

func (m *mockControl) counts() (drags, commits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drags), len(m.commits)
}

// ---- Shared Test Helpers ----

// newTestServices wires a real board with a mock control.
func newTestServices(ctl *mockControl) (*service.Service, *display.Board) {
	board := display.NewBoard(display.View{Status: service.StatusConnected})
	return &service.Service{Control: ctl, Display: board}, board
}

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
