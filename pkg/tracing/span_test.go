package tracing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func captureDebug(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.SetupWriter(&buf, "debug", "json")
	return &buf
}

func TestSpanTree_LoggedOnRootEnd(t *testing.T) {
	buf := captureDebug(t)

	// Given a request-scoped context with nested spans
	ctx := logger.WithRequestID(context.Background(), "req-7")
	ctx, root := Start(ctx, "upload")
	_, put := Start(ctx, "store.put")
	put.SetAttr("key", "notes.txt")
	put.End()
	assert.Zero(t, buf.Len(), "child spans do not log on their own")

	// When the root ends
	root.End()
	root.End()

	// Then the tree is logged once, parent first
	var records []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	assert.Equal(t, "upload", records[0]["span"])
	assert.Equal(t, "store.put", records[1]["span"])
	assert.Equal(t, "req-7", records[1]["trace_id"])
	assert.Equal(t, "notes.txt", records[1]["key"])
	assert.EqualValues(t, 1, records[1]["depth"])
	assert.Len(t, root.Children(), 1)
}

func TestStart_WithoutRequestIDGetsTraceID(t *testing.T) {
	captureDebug(t)
	ctx, s := Start(context.Background(), "apply")
	assert.NotEmpty(t, s.TraceID)
	assert.Same(t, s, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
