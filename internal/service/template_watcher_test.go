package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-stage/internal/lowerthird"
	"github.com/weiawesome/wes-io-stage/internal/repository"
)

func TestTemplateWatcher_ReloadsCatalogue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "templates.json")
	src := repository.NewFileTemplateSource(path)
	catalogue := lowerthird.NewCatalogue()

	reloaded := make(chan struct{}, 8)
	w := NewTemplateWatcher(path, func(ctx context.Context) error {
		err := catalogue.Load(ctx, src)
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return err
	})
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	doc := `[{"id":"blue","name":"Blue","position":"bottom-left","width_pct":50,"height_pct":10,
	"margin_pct":2,"background_color":"#0000ff","background_alpha":1,"text_color":"#ffffff"},
	{"id":"broken","position":"nowhere"}]`

	// The watch is registered asynchronously; rewrite until it is seen.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			return false
		}
		select {
		case <-reloaded:
		case <-time.After(100 * time.Millisecond):
			return false
		}
		_, ok := catalogue.Get("blue")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := catalogue.Get("broken")
	assert.False(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
