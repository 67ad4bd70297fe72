package llmproc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetpilot/corepipe/pkg/fleeterr"
)

// ollamaClient speaks the local LLM runtime's HTTP surface (spec §6):
//
//	GET  /api/tags     -> {models: [...]}
//	POST /api/pull     -> newline-delimited JSON stream {status, completed?, total?}
//	POST /api/generate -> single object or NDJSON stream {response, done}
//
// Adapted from pkg/ollama/client.go: the shared-client indirection through
// an internal httpclient package is collapsed into a plain *http.Client
// since the Manager already owns its own retry/timeout policy at a higher
// level (Start/Generate/EnsureModel deadlines, spec §5).
type ollamaClient struct {
	baseURL string
	http    *http.Client
}

func newOllamaClient(baseURL string) *ollamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &ollamaClient{baseURL: baseURL, http: &http.Client{}}
}

func (c *ollamaClient) versionProbe(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
		Digest     string `json:"digest"`
	} `json:"models"`
}

func (c *ollamaClient) listModels(ctx context.Context) ([]ModelRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode /api/tags: %w", err)
	}

	out := make([]ModelRecord, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		out = append(out, ModelRecord{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt, Digest: m.Digest})
	}
	return out, nil
}

type pullProgressLine struct {
	Status    string `json:"status"`
	Completed uint64 `json:"completed"`
	Total     uint64 `json:"total"`
}

// pull streams model-download progress from POST /api/pull, normalizing
// each line into a DownloadProgress and invoking onProgress. It stops at
// the first "status":"success" record, per spec §4.1.
func (c *ollamaClient) pull(ctx context.Context, model string, onProgress func(status string, completed, total uint64)) error {
	payload, _ := json.Marshal(map[string]any{"name": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fleeterr.Wrap(fleeterr.ModelPullFailed, "pull request failed for "+model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fleeterr.New(fleeterr.ModelPullFailed, fmt.Sprintf("pull %s: status %d: %s", model, resp.StatusCode, string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var p pullProgressLine
		if err := json.Unmarshal(line, &p); err != nil {
			continue // tolerate non-JSON keep-alive lines
		}
		onProgress(p.Status, p.Completed, p.Total)
		if p.Status == "success" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fleeterr.Wrap(fleeterr.ModelPullFailed, "reading pull stream for "+model, err)
	}
	return nil
}

type generatePayload struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"-"`
	Options     map[string]any `json:"options,omitempty"`
	Stream      bool    `json:"stream"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func buildGeneratePayload(req GenerateRequest) generatePayload {
	return generatePayload{
		Model:  string(req.Model),
		System: req.System,
		Prompt: req.Prompt,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
		Stream: req.Stream,
	}
}

// generateBlocking calls POST /api/generate with stream:false and returns
// the single decoded response.
func (c *ollamaClient) generateBlocking(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	payload := buildGeneratePayload(req)
	payload.Stream = false
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return GenerateResponse{}, fmt.Errorf("generate: status %d: %s", resp.StatusCode, string(raw))
	}

	var line generateLine
	if err := json.NewDecoder(resp.Body).Decode(&line); err != nil {
		return GenerateResponse{}, fmt.Errorf("decode generate response: %w", err)
	}
	return GenerateResponse{Response: line.Response, Done: line.Done}, nil
}

// generateStreaming calls POST /api/generate with stream:true, pushing
// content fragments into onChunk(content string, done bool) as they arrive.
func (c *ollamaClient) generateStreaming(ctx context.Context, req GenerateRequest, onChunk func(content string, done bool)) error {
	payload := buildGeneratePayload(req)
	payload.Stream = true
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("generate stream: status %d: %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var parsed generateLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			continue
		}
		onChunk(parsed.Response, parsed.Done)
		if parsed.Done {
			return nil
		}
	}
	return scanner.Err()
}
