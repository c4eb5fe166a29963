package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServeWebhook registers url with Telegram (when set) and serves updates on
// addr at path until ctx is done.
func (b *Bot) ServeWebhook(ctx context.Context, addr, path, url string) error {
	defer b.Close()

	if url != "" {
		if err := b.api.SetWebhook(ctx, url, b.secret); err != nil {
			return err
		}
	}
	mux := http.NewServeMux()
	mux.Handle(path, b)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	b.log.Info("telegram webhook listening", zap.String("addr", addr), zap.String("path", path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
