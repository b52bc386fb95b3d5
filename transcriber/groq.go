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

const groqURL = "https://api.groq.com/openai/v1/audio/transcriptions"

// Groq sends audio to the Groq whisper API.
type Groq struct {
	apiKey string
	lang   string
	client *http.Client
}

func NewGroq(apiKey string) *Groq {
	return &Groq{
		apiKey: apiKey,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (g *Groq) Name() string { return "groq" }

func (g *Groq) SetLanguage(lang string) { g.lang = lang }

// Load validates the credential. There is no model to pull for a hosted
// engine; a missing key should fail the first job, not the process.
func (g *Groq) Load() error {
	if g.apiKey == "" {
		return &LoadError{Engine: g.Name(), Err: fmt.Errorf("GROQ_API_KEY is empty")}
	}
	return nil
}

type groqResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

func (g *Groq) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	wavData := encoder.EncodeWAV(pcm, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(wavData); err != nil {
		return Result{}, err
	}
	writer.WriteField("model", "whisper-large-v3-turbo")
	writer.WriteField("response_format", "json")
	if g.lang != "" {
		writer.WriteField("language", g.lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, groqURL, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("groq response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("groq API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var gResp groqResponse
	if err := json.Unmarshal(data, &gResp); err != nil {
		return Result{}, fmt.Errorf("groq response parse: %w", err)
	}

	dur := gResp.Duration
	if dur == 0 {
		dur = float64(len(pcm)/2) / float64(sampleRate)
	}
	return Result{Text: strings.TrimSpace(gResp.Text), Duration: dur}, nil
}
