package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoCtx_PanicDoesNotEscape(t *testing.T) {
	done := make(chan struct{})
	GoCtx(context.Background(), "panicky", func(ctx context.Context) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deferred close did not run")
	}
}

func TestGoCtx_NilContext(t *testing.T) {
	got := make(chan context.Context, 1)
	//nolint:staticcheck
	GoCtx(nil, "nil-ctx", func(ctx context.Context) { got <- ctx })

	select {
	case ctx := <-got:
		assert.NotNil(t, ctx)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
