// Package imagegen generates illustrations through an image-capable chat
// completion model.
package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookture/internal/artifacts"
	"bookture/internal/services"
	"bookture/internal/services/llm"
)

// ReferencePrefix steers the model towards the attached character sheet.
const ReferencePrefix = "Using the attached character reference sheet for visual consistency, generate: "

// Transport is the subset of llm.Client used here.
type Transport interface {
	Do(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Request describes one image to generate.
type Request struct {
	Prompt    string
	Reference *artifacts.Artifact
}

// Generator implements the image-generation collaborator.
type Generator struct {
	transport   Transport
	model       string
	aspectRatio string
	httpClient  *http.Client
}

// Option customizes a Generator.
type Option func(*Generator)

// WithHTTPClient sets the client used to download image URLs returned by
// the model.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// New builds a generator for model, requesting aspectRatio images.
func New(transport Transport, model, aspectRatio string, opts ...Option) *Generator {
	g := &Generator{
		transport:   transport,
		model:       strings.TrimSpace(model),
		aspectRatio: strings.TrimSpace(aspectRatio),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a single image for req. When a reference is attached the
// prompt is prefixed so the model keeps characters consistent.
func (g *Generator) Generate(ctx context.Context, req Request) (artifacts.Artifact, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return artifacts.Artifact{}, services.Wrap(services.ErrValidation, "imagegen", "generate", "prompt is empty", nil)
	}

	parts := []llm.ContentPart{}
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		parts = append(parts, llm.TextPart(ReferencePrefix+prompt))
		parts = append(parts, llm.ImagePart(dataURL(*req.Reference)))
	} else {
		parts = append(parts, llm.TextPart(prompt))
	}

	chat := llm.Request{
		Model:      g.model,
		Messages:   []llm.Message{{Role: "user", Content: parts}},
		Modalities: []string{"image", "text"},
	}
	if g.aspectRatio != "" {
		chat.ImageConfig = map[string]string{"aspect_ratio": g.aspectRatio}
	}

	resp, err := g.transport.Do(ctx, chat)
	if err != nil {
		return artifacts.Artifact{}, err
	}
	images := resp.Images()
	if len(images) == 0 {
		detail := "response contained no image"
		if refusal := resp.Refusal(); refusal != "" {
			detail += " (refusal: " + refusal + ")"
		}
		return artifacts.Artifact{}, services.Wrap(services.ErrMalformedOutput, "imagegen", "generate", detail, nil)
	}
	return g.resolve(ctx, images[0])
}

func (g *Generator) resolve(ctx context.Context, ref string) (artifacts.Artifact, error) {
	if strings.HasPrefix(ref, "data:") {
		return DecodeDataURL(ref)
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return artifacts.Artifact{}, services.Wrap(services.ErrMalformedOutput, "imagegen", "resolve", "unsupported image reference", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return artifacts.Artifact{}, fmt.Errorf("build image download: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return artifacts.Artifact{}, services.Wrap(services.ErrExternal, "imagegen", "download", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return artifacts.Artifact{}, services.Wrap(services.ErrExternal, "imagegen", "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return artifacts.Artifact{}, services.Wrap(services.ErrExternal, "imagegen", "download", "read body", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return artifacts.Artifact{Data: data, ContentType: contentType}, nil
}

// DecodeDataURL parses a base64 data URL into an artifact.
func DecodeDataURL(value string) (artifacts.Artifact, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return artifacts.Artifact{}, services.Wrap(services.ErrMalformedOutput, "imagegen", "decode", "image is not a base64 data URL", nil)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return artifacts.Artifact{}, services.Wrap(services.ErrMalformedOutput, "imagegen", "decode", "invalid base64 image", err)
	}
	if len(data) == 0 {
		return artifacts.Artifact{}, services.Wrap(services.ErrMalformedOutput, "imagegen", "decode", "image is empty", nil)
	}
	contentType := strings.TrimSuffix(header, ";base64")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return artifacts.Artifact{Data: data, ContentType: contentType}, nil
}

func dataURL(a artifacts.Artifact) string {
	contentType := a.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(a.Data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
