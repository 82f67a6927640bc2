package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/httpclient"
	"mathviz/internal/logging"
)

const maxAudioBytes = 64 << 20

// HTTPProvider posts text to a speech service that answers with audio bytes,
// or with JSON carrying base64 audio under "audio".
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
	Retry    mverrors.RetryConfig // zero value means one attempt
	Logger   logging.Logger
}

type httpSynthesisRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	ReferenceText  string `json:"reference_text,omitempty"`
	ReferenceAudio string `json:"reference_audio,omitempty"`
}

type httpSynthesisResponse struct {
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Synthesize(ctx context.Context, req Request) (ProviderResult, error) {
	if err := validate(req); err != nil {
		return ProviderResult{}, err
	}
	return mverrors.RetryWithResult(ctx, p.Retry, func(ctx context.Context) (ProviderResult, error) {
		return p.synthesizeOnce(ctx, req)
	}, p.Logger)
}

func (p *HTTPProvider) synthesizeOnce(ctx context.Context, req Request) (ProviderResult, error) {
	payload := httpSynthesisRequest{Text: req.Text, Voice: req.Voice, SampleRate: req.SampleRate}
	if req.Reference != nil {
		payload.ReferenceText = req.Reference.Text
		payload.ReferenceAudio = base64.StdEncoding.EncodeToString(req.Reference.Audio)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("encode tts request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ProviderResult{}, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	client := p.Client
	if client == nil {
		client = httpclient.New(0)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadBody(resp, maxAudioBytes)
	if err != nil {
		return ProviderResult{}, fmt.Errorf("tts failed: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	result := ProviderResult{Audio: data, ContentType: contentType}
	if strings.HasPrefix(contentType, "application/json") {
		var decoded httpSynthesisResponse
		if err := json.Unmarshal(data, &decoded); err != nil {
			return ProviderResult{}, fmt.Errorf("decode tts response: %w", err)
		}
		audio, err := base64.StdEncoding.DecodeString(decoded.Audio)
		if err != nil {
			return ProviderResult{}, fmt.Errorf("decode tts audio: %w", err)
		}
		result.Audio, result.ContentType = audio, "audio/wav"
		result.Duration = secondsToDuration(decoded.Duration)
	}
	if len(result.Audio) == 0 {
		return ProviderResult{}, ErrNotGenerated
	}
	return result, nil
}
