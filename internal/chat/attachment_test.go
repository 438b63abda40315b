package chat

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"strings"
	"testing"

	"storefront/internal/models"
)

func pngBytes(t *testing.T, w, h int, noisy bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255}
			if noisy {
				c = color.NRGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dataURLBytes(t *testing.T, s string) []byte {
	t.Helper()
	i := strings.IndexByte(s, ',')
	if i < 0 {
		t.Fatalf("not a data url: %.40q", s)
	}
	b, err := base64.StdEncoding.DecodeString(s[i+1:])
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func jpegBounds(t *testing.T, a Attachment) image.Rectangle {
	t.Helper()
	raw := dataURLBytes(t, a.DataURL)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return img.Bounds()
}

func TestEncodeRejectsOversizedBeforeReading(t *testing.T) {
	opened := false
	f := File{
		Name: "manual.pdf",
		Size: 10<<20 + 1,
		Open: func() (io.ReadCloser, error) {
			opened = true
			return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
		},
	}
	_, err := (&Encoder{}).Encode(f)
	if !errors.Is(err, models.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if opened {
		t.Fatal("oversized file was read")
	}
}

func TestEncodeRejectsUnsupportedType(t *testing.T) {
	_, err := (&Encoder{}).Encode(FileFromBytes("notes.txt", []byte("just some text")))
	if !errors.Is(err, models.ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestEncodeInlinesPDF(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	a, err := (&Encoder{}).Encode(FileFromBytes("boleto.pdf", pdf))
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != models.MessagePDF || a.Name != "boleto.pdf" || a.Size != int64(len(pdf)) {
		t.Fatalf("unexpected attachment %+v", a)
	}
	if !strings.HasPrefix(a.DataURL, "data:application/pdf;base64,") {
		t.Fatalf("unexpected data url prefix %q", a.DataURL[:40])
	}
	if !bytes.Equal(dataURLBytes(t, a.DataURL), pdf) {
		t.Fatal("pdf must be inlined untouched")
	}
}

func TestEncodeDownscalesImages(t *testing.T) {
	a, err := (&Encoder{}).Encode(FileFromBytes("vestido.png", pngBytes(t, 2000, 1000, false)))
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != models.MessageImage || a.MIME != "image/jpeg" || a.Name != "vestido.jpg" {
		t.Fatalf("unexpected attachment %+v", a)
	}
	if b := jpegBounds(t, a); b.Dx() != 1280 || b.Dy() != 640 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestCompressImageStopsAtAttemptCap(t *testing.T) {
	data := pngBytes(t, 2000, 1000, true)
	out, err := CompressImage(data, ImageOptions{TargetBytes: 1, MaxAttempts: 3})
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	// 1280 -> 1024 -> 819
	if got := img.Bounds().Dx(); got != 819 {
		t.Fatalf("width = %d, want 819 after three attempts", got)
	}
}

func TestCompressImageStopsAtMinDimension(t *testing.T) {
	data := pngBytes(t, 2000, 1000, true)
	out, err := CompressImage(data, ImageOptions{TargetBytes: 1, MaxAttempts: 50, MinDimension: 1000})
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Dx(); got != 1000 {
		t.Fatalf("width = %d, want the 1000px floor", got)
	}
}

// pngHeader returns a PNG holding only a signature, an IHDR declaring
// w x h RGBA pixels and IEND. It is a few dozen bytes whatever the size.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestEncodeRejectsHugeCanvasBeforeDecoding(t *testing.T) {
	data := pngHeader(20000, 20000)
	_, err := (&Encoder{}).Encode(FileFromBytes("bomb.png", data))
	if !errors.Is(err, models.ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile", err)
	}
	if !strings.Contains(err.Error(), "20000x20000") {
		t.Fatalf("err = %v, want the declared size in the message", err)
	}
}

func TestCompressImageHonoursPixelCap(t *testing.T) {
	data := pngBytes(t, 100, 100, false)
	if _, err := CompressImage(data, ImageOptions{MaxPixels: 100 * 99}); !errors.Is(err, models.ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile over the cap", err)
	}
	if _, err := CompressImage(data, ImageOptions{MaxPixels: 100 * 100}); err != nil {
		t.Fatalf("at the cap: %v", err)
	}
}

func TestKindFor(t *testing.T) {
	cases := map[string]models.MessageKind{
		"image/png":                 models.MessageImage,
		"image/webp":                models.MessageImage,
		"application/pdf":           models.MessagePDF,
		"audio/mpeg":                models.MessageAudio,
		"audio/ogg; codecs=opus":    models.MessageAudio,
		"text/plain; charset=utf-8": "",
		"application/zip":           "",
	}
	for mime, want := range cases {
		got, ok := KindFor(mime)
		if got != want || ok != (want != "") {
			t.Errorf("KindFor(%q) = %q, %v", mime, got, ok)
		}
	}
}
