// Package spectrogram loads the mel spectrogram image the service returns
// and renders it for a terminal.
package spectrogram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxImageBytes bounds a fetched image
const maxImageBytes = 16 << 20

// Fetcher retrieves spectrogram images by reference
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a fetcher. A nil client gets a default with a timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{httpClient: client}
}

// Fetch decodes the image behind ref, a data: URL or an http(s) URL
func (f *Fetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	data, err := f.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode spectrogram: %w", err)
	}
	return img, nil
}

// Save writes the image behind ref into dir and returns the file path
func (f *Fetcher) Save(ctx context.Context, ref, dir string) (string, error) {
	img, err := f.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	return WritePNG(img, ref, dir)
}

// WritePNG writes an already fetched image into dir, named after ref, and
// returns the file path
func WritePNG(img image.Image, ref, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	out := filepath.Join(dir, fileName(ref))
	file, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create spectrogram file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("failed to write spectrogram: %w", err)
	}
	return out, nil
}

func (f *Fetcher) load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty spectrogram reference")
	}
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURL(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spectrogram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spectrogram fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// decodeDataURL handles data:[<mediatype>][;base64],<data>
func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed data URL: %w", err)
		}
		return data, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URL: %w", err)
	}
	return []byte(unescaped), nil
}

func fileName(ref string) string {
	name := "spectrogram"
	if !strings.HasPrefix(ref, "data:") {
		if u, err := url.Parse(ref); err == nil {
			if base := path.Base(u.Path); base != "." && base != "/" {
				name = strings.TrimSuffix(base, path.Ext(base))
			}
		}
	}
	return fmt.Sprintf("%s-%s.png", name, time.Now().Format("20060102-150405"))
}

// Preview renders img as ANSI truecolor half blocks, width cells wide.
// Each cell shows two pixel rows.
func Preview(img image.Image, width int) string {
	b := img.Bounds()
	if width <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return ""
	}
	if width > b.Dx() {
		width = b.Dx()
	}

	height := b.Dy() * width / b.Dx()
	if height%2 == 1 {
		height++
	}
	if height < 2 {
		height = 2
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	var sb strings.Builder
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			top := dst.RGBAAt(x, y)
			bot := dst.RGBAAt(x, y+1)
			fmt.Fprintf(&sb, "\033[38;2;%d;%d;%dm\033[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B, bot.R, bot.G, bot.B)
		}
		sb.WriteString("\033[0m\n")
	}
	return sb.String()
}
