// Package transcribe talks to the remote transcription service: one
// multipart POST per submission, answered with a transcript and a
// spectrogram reference or an error.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soypete/melscribe/pkg/metrics"
	"golang.org/x/oauth2"
)

// DefaultEndpoint is the path submissions are posted to
const DefaultEndpoint = "/transcribe"

// Options configures a Client
type Options struct {
	BaseURL  string
	Endpoint string

	// Timeout bounds a whole submission. Transcription can take time.
	Timeout time.Duration

	// TokenSource adds a bearer token to every request when set
	TokenSource oauth2.TokenSource

	Logger *slog.Logger
}

// Client represents a transcription service HTTP client
type Client struct {
	baseURL    *url.URL
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new transcription client
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	var transport http.RoundTripper = http.DefaultTransport
	if opts.TokenSource != nil {
		transport = &oauth2.Transport{Source: opts.TokenSource, Base: transport}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  base,
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger.With("component", "transcribe"),
	}, nil
}

// HTTPClient returns the authenticated client, for fetching spectrograms
// from the same service.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Transcribe submits one upload and waits for the service's answer
func (c *Client) Transcribe(ctx context.Context, up Upload) (*Result, error) {
	if len(up.Audio) == 0 {
		return nil, fmt.Errorf("upload %q has no audio data", up.Filename)
	}

	body, contentType, err := buildForm(up)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(c.endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	log := c.logger.With("request_id", requestID, "filename", up.Filename)
	log.Debug("submitting audio", "bytes", len(up.Audio), "content_type", up.ContentType)

	metrics.UploadBytes.Observe(float64(len(up.Audio)))

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.TranscribeRequestsTotal.WithLabelValues("error").Inc()
		log.Warn("submission failed", "error", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	metrics.TranscribeRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	elapsed := time.Since(startTime)
	metrics.TranscribeDuration.Observe(elapsed.Seconds())

	decoded, err := decodeResponse(resp.StatusCode, respBody)
	if err != nil {
		log.Warn("transcription failed", "status", resp.StatusCode, "elapsed", elapsed, "error", err)
		return nil, err
	}

	log.Info("transcription complete", "status", resp.StatusCode, "elapsed", elapsed)

	return &Result{
		Transcription:  decoded.Transcription,
		MelSpectrogram: c.resolveImage(decoded.MelSpectrogram),
		RequestID:      requestID,
		Elapsed:        elapsed,
	}, nil
}

// Status checks if the transcription service is running
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/"), nil)
	if err != nil {
		return &StatusResponse{
			Running: false,
			Error:   fmt.Sprintf("failed to create request: %v", err),
		}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &StatusResponse{
			Running: false,
			Error:   fmt.Sprintf("failed to connect: %v", err),
		}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusResponse{
			Running: false,
			Error:   statusMessage(resp.StatusCode),
		}, nil
	}

	// The service greets with {"message": "..."}; anything else still counts
	var greeting struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&greeting)

	return &StatusResponse{
		Running: true,
		Message: greeting.Message,
	}, nil
}

// decodeResponse turns a status and body into a response or an error.
// An error field wins over the status; an error status without a field is
// reported by status.
func decodeResponse(status int, body []byte) (*response, error) {
	ok := status >= 200 && status < 300

	if err := validateBody(body); err != nil {
		if !ok {
			return nil, &ServiceError{StatusCode: status, Message: statusMessage(status)}
		}
		return nil, err
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if r.Error != "" {
		return nil, &ServiceError{StatusCode: status, Message: r.Error}
	}
	if !ok {
		return nil, &ServiceError{StatusCode: status, Message: statusMessage(status)}
	}
	return &r, nil
}

func buildForm(up Upload) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(up.Filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(up.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.baseURL.String() + path
	}
	return c.baseURL.ResolveReference(ref).String()
}

// resolveImage makes relative spectrogram references absolute. Embedded
// data URLs pass through untouched.
func (c *Client) resolveImage(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	return c.resolve(ref)
}

// UploadFromFile reads a user-selected audio file
func UploadFromFile(path string) (Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to read audio file: %w", err)
	}
	return Upload{
		Filename:    filepath.Base(path),
		ContentType: ContentTypeFor(filepath.Ext(path)),
		Audio:       data,
	}, nil
}

// ContentTypeFor maps an audio file extension to its MIME type
func ContentTypeFor(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "webm":
		return "audio/webm"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	case "m4a", "mp4":
		return "audio/mp4"
	case "flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
