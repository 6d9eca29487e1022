package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediabatch/internal/domain"
	"mediabatch/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides a facade over the Gemini generateContent API. Failures are
// classified at this boundary into transient and permanent kinds so callers
// decide retry eligibility without inspecting error text. When no API key is
// configured the client produces deterministic synthetic assets, which keeps
// the rest of the pipeline exercised in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest represents the information required to generate one image.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Seed           *uint64
	Quality        string
	AspectRatio    string
	Model          string
	RequestID      string
}

// VideoRequest represents the information required to generate one video.
type VideoRequest struct {
	Prompt         string
	NegativePrompt string
	Seed           *uint64
	Model          string
	RequestID      string
}

// Asset is the normalized representation of generated media bytes.
type Asset struct {
	Data   []byte
	Format string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount int     `json:"candidateCount,omitempty"`
	Seed           *uint64 `json:"seed,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image-preview"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.0-generate-preview"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// ImageModel returns the configured default image model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// GenerateImage produces the bytes of one generated image.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	model := req.Model
	if model == "" {
		model = c.imageModel
	}

	if c.apiKey == "" {
		return c.syntheticImage(req, model), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildImagePrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount: 1,
			Seed:           req.Seed,
		},
	}

	var response geminiGenerateContentResponse
	endpoint := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	if err := c.invokeGemini(ctx, endpoint, payload, &response); err != nil {
		return Asset{}, err
	}

	asset, err := extractInlineAsset(response, "image/png")
	if err != nil {
		return Asset{}, err
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Int("size_bytes", len(asset.Data)).
		Msg("genai: generated image")

	return asset, nil
}

// GenerateVideo produces the bytes of one generated video.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	model := req.Model
	if model == "" {
		model = c.videoModel
	}

	if c.apiKey == "" {
		return c.syntheticVideo(req, model), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildVideoPrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount: 1,
			Seed:           req.Seed,
		},
	}

	var response geminiGenerateContentResponse
	endpoint := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	if err := c.invokeGemini(ctx, endpoint, payload, &response); err != nil {
		return Asset{}, err
	}

	asset, err := extractInlineAsset(response, "video/mp4")
	if err != nil {
		return Asset{}, err
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Int("size_bytes", len(asset.Data)).
		Msg("genai: generated video")

	return asset, nil
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Permanent("genai: marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Permanent("genai: create request", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.Transient("genai: invoke gemini", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Permanent("genai: decode response", err)
	}
	return nil
}

// classifyStatus maps an HTTP error response onto the retry taxonomy:
// 429 and 5xx are transient, everything else in the 4xx range is permanent.
func classifyStatus(resp *http.Response) error {
	var apiErr geminiErrorResponse
	msg := ""
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else {
		data, _ := io.ReadAll(resp.Body)
		msg = strings.TrimSpace(string(data))
	}

	err := fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Transient("genai", fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err))
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Transient("genai", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err))
	default:
		return domain.Permanent("genai", err)
	}
}

func extractInlineAsset(response geminiGenerateContentResponse, defaultFormat string) (Asset, error) {
	for _, candidate := range response.Candidates {
		if candidate.FinishReason == "SAFETY" {
			return Asset{}, domain.Permanent("genai", domain.ErrContentBlocked)
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return Asset{}, domain.Permanent("genai: decode inline data", err)
			}
			format := part.InlineData.MimeType
			if format == "" {
				format = defaultFormat
			}
			return Asset{Data: data, Format: format}, nil
		}
	}
	return Asset{}, domain.Permanent("genai", domain.ErrEmptyResponse)
}

func (c *Client) syntheticImage(req ImageRequest, model string) Asset {
	seed := deterministicSeed(req.RequestID, req.Prompt, req.NegativePrompt, model)
	width, height := normalizeAspect(req.AspectRatio)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Msg("genai: api key missing, generated synthetic image")

	return Asset{
		Data:   renderSyntheticImage(width, height, seed),
		Format: "image/png",
	}
}

func (c *Client) syntheticVideo(req VideoRequest, model string) Asset {
	seed := deterministicSeed(req.RequestID, req.Prompt, model)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", model).
		Msg("genai: api key missing, generated synthetic video")

	return Asset{
		Data:   renderSyntheticVideo(seed, req.Prompt),
		Format: "video/mp4",
	}
}

func buildImagePrompt(req ImageRequest) string {
	titler := cases.Title(language.Und)

	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if negative := strings.TrimSpace(req.NegativePrompt); negative != "" {
		b.WriteString("\nAvoid: ")
		b.WriteString(negative)
	}
	if quality := strings.TrimSpace(req.Quality); quality != "" {
		b.WriteString("\nQuality: ")
		b.WriteString(titler.String(quality))
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		b.WriteString("\nAspect ratio: ")
		b.WriteString(aspect)
	}
	return b.String()
}

func buildVideoPrompt(req VideoRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if negative := strings.TrimSpace(req.NegativePrompt); negative != "" {
		b.WriteString("\nAvoid: ")
		b.WriteString(negative)
	}
	return b.String()
}

func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := maxInt(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func renderSyntheticVideo(seed, prompt string) []byte {
	lines := []string{
		"Synthetic video placeholder",
		fmt.Sprintf("Seed: %s", seed),
		fmt.Sprintf("Prompt: %s", strings.TrimSpace(prompt)),
		"",
		"This placeholder represents where rendered video bytes would be stored",
		"once a video API key is configured.",
	}
	return []byte(strings.Join(lines, "\n"))
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	r := mustParseHexByte(segment[0:2])
	g := mustParseHexByte(segment[2:4])
	b := mustParseHexByte(segment[4:6])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return 1920, 1080
	case "9:16":
		return 1080, 1920
	case "4:3":
		return 1024, 768
	case "3:4":
		return 768, 1024
	case "1:1", "":
		return 1024, 1024
	default:
		return 1024, 1024
	}
}
