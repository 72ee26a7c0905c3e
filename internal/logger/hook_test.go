package logger

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncHook_WritesAndSkipsFiltered(t *testing.T) {
	out := &syncBuffer{}
	hook := NewAsyncHook([]io.Writer{out}, 10)

	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.AddHook(NewFilterHook(&LogConfig{FilterModules: "ledger"}))
	l.AddHook(hook)
	l.SetOutput(&bytes.Buffer{})

	l.WithField("module", "ledger").Info("kept line")
	l.WithField("module", "listing").Info("dropped line")

	require.NoError(t, hook.Close())
	assert.Contains(t, out.String(), "kept line")
	assert.NotContains(t, out.String(), "dropped line")
	assert.NotContains(t, out.String(), "_filtered")
}
