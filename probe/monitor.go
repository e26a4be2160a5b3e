package probe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Monitor serves live counter reads over HTTP while a capture session runs.
// The table and pipeline guard their own state, so the handlers are safe to
// call from the server's goroutines.
type Monitor struct {
	srv *http.Server
}

// NewMonitor builds the monitor on the given listen address.
func NewMonitor(addr string, table *Table, pipeline *Pipeline) *Monitor {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/v1/counters", func(c *gin.Context) {
		c.JSON(http.StatusOK, table.Snapshot())
	})
	r.GET("/api/v1/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, pipeline.Stats())
	})

	return &Monitor{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine. errCh receives the serve
// error if the listener fails.
func (m *Monitor) Start(errCh chan<- error) {
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if errCh != nil {
				errCh <- err
			}
		}
	}()
}

// Shutdown stops the server gracefully.
func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
