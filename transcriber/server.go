package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"murmur/encoder"
)

// Server talks to a local whisper.cpp-style HTTP daemon. Load probes the
// health endpoint so a dead daemon fails the first job instead of hanging it.
type Server struct {
	baseURL string
	lang    string
	client  *http.Client
}

func NewServer(baseURL string) *Server {
	return &Server{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *Server) Name() string { return "server" }

func (s *Server) SetLanguage(lang string) { s.lang = lang }

func (s *Server) Load() error {
	resp, err := s.client.Get(s.baseURL + "/health")
	if err != nil {
		return &LoadError{Engine: s.Name(), Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &LoadError{Engine: s.Name(), Err: fmt.Errorf("health check: HTTP %d", resp.StatusCode)}
	}
	return nil
}

type serverResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

func (s *Server) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	flacData, err := encoder.EncodeFLAC(pcm, sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encoding audio: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(flacData); err != nil {
		return Result{}, err
	}
	writer.WriteField("response_format", "json")
	if s.lang != "" {
		writer.WriteField("language", s.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("server request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var sResp serverResponse
	if err := json.Unmarshal(data, &sResp); err != nil {
		return Result{}, fmt.Errorf("server response parse: %w", err)
	}
	if sResp.Error != "" {
		return Result{}, fmt.Errorf("server: %s", sResp.Error)
	}

	return Result{
		Text:     strings.TrimSpace(sResp.Text),
		Duration: float64(len(pcm)/2) / float64(sampleRate),
	}, nil
}
