package chat

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// FileMicrophone replays an audio file as if it were being captured. It
// backs the CLI's voice notes.
type FileMicrophone struct {
	Path      string
	ChunkSize int
	Interval  time.Duration
}

func (m FileMicrophone) Supports(format string) bool {
	mt, err := mimetype.DetectFile(m.Path)
	if err != nil {
		return false
	}
	return subtype(mt.String()) == subtype(format)
}

func subtype(mime string) string {
	base := strings.ToLower(baseMIME(mime))
	if i := strings.IndexByte(base, '/'); i >= 0 {
		return base[i+1:]
	}
	return base
}

func (m FileMicrophone) Open(ctx context.Context) (Stream, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, err
	}
	chunk := m.ChunkSize
	if chunk <= 0 {
		chunk = 16 << 10
	}
	interval := m.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &fileStream{data: data, chunk: chunk, interval: interval, track: &fileTrack{live: true}}, nil
}

type fileStream struct {
	data     []byte
	chunk    int
	interval time.Duration
	track    *fileTrack
}

func (s *fileStream) Tracks() []Track { return []Track{s.track} }

func (s *fileStream) Record(format string, onData func([]byte)) (func(), error) {
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for off := 0; off < len(s.data); off += s.chunk {
			select {
			case <-quit:
				return
			case <-t.C:
			}
			end := min(off+s.chunk, len(s.data))
			onData(s.data[off:end])
		}
	}()
	return func() { once.Do(func() { close(quit) }) }, nil
}

type fileTrack struct {
	mu   sync.Mutex
	live bool
}

func (t *fileTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *fileTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}
