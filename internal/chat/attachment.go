package chat

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"storefront/internal/metrics"
	"storefront/internal/models"
)

const defaultMaxAttachmentBytes = 10 << 20

// File is a user-picked file. Size is known up front so oversized files are
// rejected without reading them.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

func FileFromPath(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if fi.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: fi.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

func FileFromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Attachment is an encoded file ready to go into an outgoing message.
type Attachment struct {
	Kind    models.MessageKind
	Name    string
	MIME    string
	Size    int64
	DataURL string
}

// Encoder validates picked files and turns them into inline attachments.
type Encoder struct {
	MaxBytes int64
	Image    ImageOptions
}

func (e *Encoder) maxBytes() int64 {
	if e == nil || e.MaxBytes <= 0 {
		return defaultMaxAttachmentBytes
	}
	return e.MaxBytes
}

// KindFor maps a detected MIME type to a message kind. ok is false for
// anything the chat does not accept.
func KindFor(mime string) (kind models.MessageKind, ok bool) {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch {
	case base == "image/jpeg", base == "image/png", base == "image/gif", base == "image/webp":
		return models.MessageImage, true
	case base == "application/pdf":
		return models.MessagePDF, true
	case strings.HasPrefix(base, "audio/"):
		return models.MessageAudio, true
	}
	return "", false
}

// Encode checks the size first, then the content type, and only then does
// any encoding. Images are downscaled and re-compressed; PDFs and audio are
// inlined as they are.
func (e *Encoder) Encode(f File) (Attachment, error) {
	limit := e.maxBytes()
	if f.Size > limit {
		return Attachment{}, fmt.Errorf("%w: %s is %d bytes, limit %d", models.ErrFileTooLarge, f.Name, f.Size, limit)
	}
	if f.Open == nil {
		return Attachment{}, fmt.Errorf("%w: %s cannot be read", models.ErrUnsupportedFile, f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return Attachment{}, err
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	rc.Close()
	if err != nil {
		return Attachment{}, err
	}
	if int64(len(data)) > limit {
		return Attachment{}, fmt.Errorf("%w: %s grew past %d bytes", models.ErrFileTooLarge, f.Name, limit)
	}

	detected := mimetype.Detect(data)
	kind, ok := KindFor(detected.String())
	if !ok {
		return Attachment{}, fmt.Errorf("%w: %s (%s)", models.ErrUnsupportedFile, f.Name, detected.String())
	}

	start := time.Now()
	defer func() { metrics.AttachmentEncodeDuration.Observe(time.Since(start).Seconds()) }()

	switch kind {
	case models.MessageImage:
		var opts ImageOptions
		if e != nil {
			opts = e.Image
		}
		out, err := CompressImage(data, opts)
		if err != nil {
			return Attachment{}, err
		}
		return inline(models.MessageImage, jpegName(f.Name), "image/jpeg", out), nil
	case models.MessagePDF, models.MessageAudio:
		return inline(kind, f.Name, baseMIME(detected.String()), data), nil
	case models.MessageText:
	}
	return Attachment{}, fmt.Errorf("%w: %s", models.ErrUnsupportedFile, f.Name)
}

func inline(kind models.MessageKind, name, mime string, data []byte) Attachment {
	return Attachment{
		Kind:    kind,
		Name:    name,
		MIME:    mime,
		Size:    int64(len(data)),
		DataURL: DataURL(mime, data),
	}
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func baseMIME(mime string) string {
	return strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
}

func jpegName(name string) string {
	ext := filepath.Ext(name)
	if name == "" {
		return "image.jpg"
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
