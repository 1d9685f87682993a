package supervisor

import "sync"

// OutputSource selects which stream(s) RecentOutput reads.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceBoth   = "both"
)

// outputBuffer is a bounded circular buffer of recent output lines. It is
// touched only by the stream scanner goroutines and accessor methods, so it
// carries its own light mutex instead of the supervisor lock.
type outputBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
}

func newOutputBuffer(capacity int) *outputBuffer {
	return &outputBuffer{capacity: capacity}
}

func (b *outputBuffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.capacity {
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
}

// recent returns the trailing n lines. n <= 0 returns the whole buffer.
func (b *outputBuffer) recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

func (b *outputBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

func (b *outputBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
