package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the Gemini generateContent and Files APIs.
// Providers translate domain requests into calls here; nothing above this
// package knows the wire format.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// FileHandle is a provider-side pointer to previously uploaded bytes. Handles
// expire server-side roughly two days after upload.
type FileHandle struct {
	URI      string
	MimeType string
}

// ImageRequest represents one multimodal generation call.
type ImageRequest struct {
	Files       []FileHandle
	Prompt      string
	AspectRatio string
	ImageSize   string
	ImageOnly   bool
	RequestID   string
}

// InlineImage is one image returned by the model.
type InlineImage struct {
	Data     []byte
	MimeType string
}

// ImageResult is the normalized response of a generation call.
type ImageResult struct {
	Images []InlineImage
	Text   string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []geminiSafetySetting   `json:"safetySettings,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiFileInfo struct {
	Name           string `json:"name,omitempty"`
	URI            string `json:"uri,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	ExpirationTime string `json:"expirationTime,omitempty"`
}

type geminiUploadResponse struct {
	File geminiFileInfo `json:"file"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

var defaultSafetySettings = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
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

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
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
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImage performs one generateContent call with the ordered file
// handles followed by the prompt text. Part order matters: the model resolves
// "reference image N" by the position of the fileData parts.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	parts := make([]geminiPart, 0, len(req.Files)+1)
	for _, file := range req.Files {
		mimeType := file.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		parts = append(parts, geminiPart{FileData: &geminiFileData{
			MimeType: mimeType,
			FileURI:  file.URI,
		}})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	modalities := []string{"TEXT", "IMAGE"}
	if req.ImageOnly {
		modalities = []string{"IMAGE"}
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: modalities,
			ImageConfig: &geminiImageConfig{
				AspectRatio: req.AspectRatio,
				ImageSize:   req.ImageSize,
			},
		},
		SafetySettings: defaultSafetySettings,
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	result := &ImageResult{}
	var text strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode inline data: %w", err)
				}
				mimeType := part.InlineData.MimeType
				if mimeType == "" {
					mimeType = "image/png"
				}
				result.Images = append(result.Images, InlineImage{Data: data, MimeType: mimeType})
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	result.Text = text.String()

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Int("images", len(result.Images)).
		Int("references", len(req.Files)).
		Msg("genai: generate content done")

	return result, nil
}

// UploadFile pushes bytes to the Gemini Files API and returns the resulting
// handle. The server expires uploads after ~48h; callers cache handles with a
// shorter TTL.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (FileHandle, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	if displayName == "" {
		displayName = "reference.png"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return FileHandle{}, fmt.Errorf("create metadata part: %w", err)
	}
	meta := map[string]any{"file": map[string]string{"displayName": displayName}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return FileHandle{}, fmt.Errorf("encode metadata: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return FileHandle{}, fmt.Errorf("create media part: %w", err)
	}
	if _, err := mediaPart.Write(data); err != nil {
		return FileHandle{}, fmt.Errorf("write media part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return FileHandle{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadEndpoint(), &body)
	if err != nil {
		return FileHandle{}, fmt.Errorf("create upload request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileHandle{}, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return FileHandle{}, c.decodeError(resp)
	}

	var uploaded geminiUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return FileHandle{}, fmt.Errorf("decode upload response: %w", err)
	}

	uri := uploaded.File.URI
	if uri == "" {
		uri = uploaded.File.Name
	}
	if uri == "" {
		return FileHandle{}, fmt.Errorf("upload response missing file uri")
	}

	handleMime := uploaded.File.MimeType
	if handleMime == "" {
		handleMime = mimeType
	}

	c.logger.Debug().
		Str("display_name", displayName).
		Str("mime_type", handleMime).
		Msg("genai: file uploaded")

	return FileHandle{URI: uri, MimeType: handleMime}, nil
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	if len(data) > 0 {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}

// uploadEndpoint maps the configured API base onto the media-upload base, e.g.
// .../v1beta -> .../upload/v1beta/files.
func (c *Client) uploadEndpoint() string {
	base := strings.TrimRight(c.baseURL, "/")
	if idx := strings.LastIndex(base, "/v1"); idx >= 0 {
		return base[:idx] + "/upload" + base[idx:] + "/files"
	}
	return base + "/upload/v1beta/files"
}
