// Package inference wraps the remote transcribe/analyze/synthesize API.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hoanghero125/visaid/internal/config"
)

// ErrEmptyResult indicates the API answered but produced no usable content.
var ErrEmptyResult = errors.New("empty inference result")

// Client is a stateless wrapper around the three remote inference
// operations. Each call is a single attempt bounded by the configured
// timeout; retries are the caller's decision.
type Client struct {
	cfg    config.APIConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a client from API config.
func NewClient(cfg config.APIConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger,
	}
}

// Transcribe uploads the audio artifact and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	body, err := c.postFile(ctx, c.cfg.TranscribePath, "file", audioPath, nil)
	if err != nil {
		return "", err
	}

	text, err := probeField(body, c.cfg.TranscriptFields)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Analyze uploads the image artifact with the transcript as prompt context
// and returns the answer text.
func (c *Client) Analyze(ctx context.Context, imagePath string, prompt string) (string, error) {
	fields := map[string]string{}
	if strings.TrimSpace(prompt) != "" {
		fields[c.cfg.PromptField] = prompt
	}

	body, err := c.postFile(ctx, c.cfg.AnalyzePath, "image", imagePath, fields)
	if err != nil {
		return "", err
	}

	answer, err := probeField(body, c.cfg.AnswerFields)
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Synthesize converts text to speech and writes the audio bytes to outPath.
// The API may answer with a binary audio body or with JSON carrying an
// audio reference (URL or base64).
func (c *Client) Synthesize(ctx context.Context, text string, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyResult
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode synthesize request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url(c.cfg.SynthesizePath), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpStatusError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if isAudioContentType(contentType) {
		return writeBody(resp.Body, outPath)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read synthesize response: %w", err)
	}
	ref, err := probeField(body, c.cfg.AudioRefFields)
	if err != nil {
		return err
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return c.fetchAudio(ctx, ref, outPath)
	}

	decoded, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		return fmt.Errorf("decode base64 audio: %w", err)
	}
	if len(decoded) == 0 {
		return ErrEmptyResult
	}
	return writeBody(bytes.NewReader(decoded), outPath)
}

// fetchAudio resolves an audio URL reference into the output file.
func (c *Client) fetchAudio(ctx context.Context, url string, outPath string) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build audio fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpStatusError(resp)
	}
	return writeBody(resp.Body, outPath)
}

// postFile uploads one file plus optional form fields and returns the
// response body on HTTP success.
func (c *Client) postFile(ctx context.Context, path string, fileField string, filePath string, fields map[string]string) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", filePath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload payload: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field %q: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url(path), &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}

	c.logger.Debug("inference call complete",
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// probeField decodes a JSON body and returns the first non-empty string
// among the candidate field names. The field-name set is configuration, not
// code, because the upstream schema is unspecified.
func probeField(body []byte, candidates []string) (string, error) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response JSON: %w", err)
	}

	for _, name := range candidates {
		value, ok := decoded[name]
		if !ok {
			continue
		}
		text, ok := value.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		return text, nil
	}
	return "", fmt.Errorf("no usable value among fields %v: %w", candidates, ErrEmptyResult)
}

func writeBody(r io.Reader, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o700); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	file, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create audio output %q: %w", outPath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, r)
	if err != nil {
		return fmt.Errorf("write audio output %q: %w", outPath, err)
	}
	if n == 0 {
		return ErrEmptyResult
	}
	return nil
}

func isAudioContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "application/octet-stream")
}

func httpStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	msg := strings.TrimSpace(string(body))
	if msg != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}
