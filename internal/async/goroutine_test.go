package async

import (
	"strings"
	"sync"
	"testing"
)

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, format)
}

func TestSafeConvertsPanic(t *testing.T) {
	logger := &recordingLogger{}
	err := Safe(logger, "render-Scene1", func() error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "render-Scene1") {
		t.Fatalf("expected panic error naming the job, got %v", err)
	}
	if len(logger.msgs) != 1 {
		t.Fatalf("expected panic to be logged once, got %d", len(logger.msgs))
	}
}

func TestGoRecovers(t *testing.T) {
	logger := &recordingLogger{}
	var wg sync.WaitGroup
	wg.Add(1)
	Go(logger, "worker", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
}
