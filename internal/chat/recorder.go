package chat

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/alerts"
	"storefront/internal/models"
	"storefront/internal/timeutil"
)

// AudioFormats lists recording formats from most to least preferred.
var AudioFormats = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/mpeg",
	"audio/wav",
}

// Microphone hands out capture streams.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
	Supports(format string) bool
}

// Stream is an open capture. Record delivers encoded chunks to onData until
// the returned stop is called; a few chunks may still arrive shortly after.
type Stream interface {
	Tracks() []Track
	Record(format string, onData func([]byte)) (stop func(), err error)
}

type Track interface {
	Live() bool
	Stop()
}

// Recorder captures one voice note at a time. The microphone is held only
// while recording and is released on every way out.
type Recorder struct {
	mic      Microphone
	grace    time.Duration
	maxBytes int64
	alerts   alerts.Sink
	logger   *slog.Logger

	mu      sync.Mutex
	active  bool
	session uint64
	stream  Stream
	stopRec func()
	format  string
	chunks  [][]byte
}

type RecorderConfig struct {
	Microphone Microphone
	StopGrace  time.Duration
	// MaxBytes caps the finished voice note, like picked attachments.
	MaxBytes int64
	Alerts   alerts.Sink
	Logger   *slog.Logger
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 300 * time.Millisecond
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxAttachmentBytes
	}
	if cfg.Alerts == nil {
		cfg.Alerts = alerts.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		mic:      cfg.Microphone,
		grace:    cfg.StopGrace,
		maxBytes: cfg.MaxBytes,
		alerts:   cfg.Alerts,
		logger:   cfg.Logger.With("component", "recorder"),
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// PickFormat returns the first entry of AudioFormats the microphone supports.
func PickFormat(mic Microphone) string {
	for _, f := range AudioFormats {
		if mic.Supports(f) {
			return f
		}
	}
	return ""
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return models.ErrRecordingInProgress
	}
	// reserve the slot so a second Start cannot open the microphone too
	r.active = true
	r.session++
	session := r.session
	r.chunks = nil
	r.mu.Unlock()

	fail := func(err error, msg string) error {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		alerts.Emit(r.alerts, alerts.Error, "Gravação", msg)
		return err
	}

	if r.mic == nil {
		return fail(models.ErrMicrophoneNotLive, "Microfone indisponível")
	}
	stream, err := r.mic.Open(ctx)
	if err != nil {
		r.logger.Warn("open microphone", "err", err)
		return fail(fmt.Errorf("%w: %v", models.ErrMicrophoneNotLive, err), "Não foi possível acessar o microfone")
	}
	if !allLive(stream.Tracks()) {
		releaseTracks(stream)
		return fail(models.ErrMicrophoneNotLive, "O microfone não está ativo")
	}

	format := PickFormat(r.mic)
	stop, err := stream.Record(format, func(b []byte) { r.collect(session, b) })
	if err != nil {
		releaseTracks(stream)
		r.logger.Warn("start recording", "format", format, "err", err)
		return fail(fmt.Errorf("start recording: %w", err), "Não foi possível iniciar a gravação")
	}

	r.mu.Lock()
	if r.session != session {
		// cancelled while the microphone was opening
		r.mu.Unlock()
		stop()
		releaseTracks(stream)
		return models.ErrNotRecording
	}
	r.stream, r.stopRec, r.format = stream, stop, format
	r.mu.Unlock()
	r.logger.Debug("recording started", "format", format)
	return nil
}

// collect drops empty chunks and chunks from an earlier session.
func (r *Recorder) collect(session uint64, b []byte) {
	if len(b) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if session != r.session || !r.active {
		return
	}
	r.chunks = append(r.chunks, append([]byte(nil), b...))
}

// Stop ends the recording, waits the grace period for trailing chunks and
// returns the assembled voice note. An empty recording is an error the user
// is told about.
func (r *Recorder) Stop(ctx context.Context) (Attachment, error) {
	r.mu.Lock()
	if !r.active || r.stopRec == nil {
		r.mu.Unlock()
		return Attachment{}, models.ErrNotRecording
	}
	stop := r.stopRec
	r.mu.Unlock()

	stop()
	select {
	case <-ctx.Done():
	case <-time.After(r.grace):
	}

	r.mu.Lock()
	chunks, format := r.chunks, r.format
	r.mu.Unlock()
	r.release()

	data := bytes.Join(chunks, nil)
	if len(data) == 0 {
		alerts.Emit(r.alerts, alerts.Error, "Gravação", "A gravação ficou vazia, tente novamente")
		return Attachment{}, models.ErrEmptyRecording
	}
	if int64(len(data)) > r.maxBytes {
		alerts.Emit(r.alerts, alerts.Error, "Gravação", "A gravação ficou grande demais, grave um áudio mais curto")
		return Attachment{}, fmt.Errorf("%w: voice note is %d bytes, limit %d", models.ErrFileTooLarge, len(data), r.maxBytes)
	}
	mime := baseMIME(format)
	if mime == "" {
		mime = "audio/webm"
	}
	name := fmt.Sprintf("audio-%s.%s", timeutil.Now().Format("20060102-150405"), audioExt(mime))
	return inline(models.MessageAudio, name, mime, data), nil
}

// Cancel discards the recording, if any, and releases the microphone.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	stop := r.stopRec
	r.mu.Unlock()
	if stop != nil {
		stop()
	}
	r.release()
}

func (r *Recorder) release() {
	r.mu.Lock()
	stream := r.stream
	r.stream, r.stopRec, r.format, r.chunks = nil, nil, "", nil
	r.active = false
	r.session++
	r.mu.Unlock()
	if stream != nil {
		releaseTracks(stream)
	}
}

func allLive(tracks []Track) bool {
	if len(tracks) == 0 {
		return false
	}
	for _, t := range tracks {
		if !t.Live() {
			return false
		}
	}
	return true
}

func releaseTracks(s Stream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

func audioExt(mime string) string {
	switch strings.TrimPrefix(mime, "audio/") {
	case "ogg":
		return "ogg"
	case "mp4":
		return "m4a"
	case "mpeg":
		return "mp3"
	case "wav":
		return "wav"
	}
	return "webm"
}
