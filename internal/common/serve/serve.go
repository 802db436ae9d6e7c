package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe runs srv until ctx is cancelled, then shuts it down gracefully.
// It returns nil on a clean shutdown.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "serving on %s", srv.Addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrapf(err, "shutting down server on %s", srv.Addr)
		}
		return nil
	}
}
