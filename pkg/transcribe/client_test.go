package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Options{BaseURL: url, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestClient_Transcribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("Expected path /transcribe, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected X-Request-ID header")
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file in form, got error: %v", err)
			return
		}
		defer file.Close()

		if header.Filename != "recording.webm" {
			t.Errorf("Expected filename recording.webm, got %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "audio/webm" {
			t.Errorf("Expected part content type audio/webm, got %s", ct)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake audio data" {
			t.Errorf("Unexpected audio payload %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"transcription":   "hello",
			"mel_spectrogram": "/img/1.png",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Transcribe(ctx, Upload{
		Filename:    "recording.webm",
		ContentType: "audio/webm",
		Audio:       []byte("fake audio data"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if res.Transcription != "hello" {
		t.Errorf("Expected 'hello', got '%s'", res.Transcription)
	}
	if res.MelSpectrogram != server.URL+"/img/1.png" {
		t.Errorf("Expected resolved spectrogram URL, got '%s'", res.MelSpectrogram)
	}
	if res.RequestID == "" {
		t.Error("Expected request ID to be set")
	}
}

func TestClient_Transcribe_ErrorField(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusRequestEntityTooLarge, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error": "file too large"}`))
		}))

		client := newTestClient(t, server.URL)
		_, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")})
		server.Close()

		var svcErr *ServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("status %d: expected ServiceError, got %v", status, err)
		}
		if svcErr.Message != "file too large" {
			t.Errorf("status %d: expected verbatim message, got %q", status, svcErr.Message)
		}
		if svcErr.StatusCode != status {
			t.Errorf("Expected status %d, got %d", status, svcErr.StatusCode)
		}
	}
}

func TestClient_Transcribe_ServerErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")})

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("Expected ServiceError, got %v", err)
	}
	if !strings.Contains(svcErr.Message, "502") {
		t.Errorf("Expected status in message, got %q", svcErr.Message)
	}
}

func TestClient_Transcribe_InvalidSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["not", "an", "object"]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestClient_Transcribe_TranscriptOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcription": " And so my fellow Americans"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	res, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.MelSpectrogram != "" {
		t.Errorf("Expected no spectrogram, got %q", res.MelSpectrogram)
	}
}

func TestClient_Transcribe_DataURLPassesThrough(t *testing.T) {
	const dataURL = "data:image/png;base64,iVBORw0KGgo="
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"transcription": "hi", "mel_spectrogram": dataURL})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	res, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.MelSpectrogram != dataURL {
		t.Errorf("Expected data URL untouched, got %q", res.MelSpectrogram)
	}
}

func TestClient_Transcribe_EmptyAudio(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")
	if _, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav"}); err == nil {
		t.Fatal("Expected error for empty audio")
	}
}

func TestClient_Transcribe_BearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		w.Write([]byte(`{"transcription": "ok"}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{
		BaseURL:     server.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), Upload{Filename: "a.wav", Audio: []byte("x")}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestClient_Status_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("Expected path /, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"message": "Whisper API is ready to transcribe audio!"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !status.Running {
		t.Error("Expected status.Running to be true")
	}
	if status.Message == "" {
		t.Error("Expected greeting message")
	}
}

func TestClient_Status_Failure(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if status.Running {
		t.Error("Expected status.Running to be false")
	}
	if status.Error == "" {
		t.Error("Expected status.Error to be set")
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("Expected error for non-http scheme")
	}
}

func TestUploadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvard.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}

	up, err := UploadFromFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if up.Filename != "harvard.wav" || up.ContentType != "audio/wav" {
		t.Errorf("Unexpected upload %+v", up)
	}

	if _, err := UploadFromFile(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("Expected error for missing file")
	}
}
