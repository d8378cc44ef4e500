package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/lessonforge/lessonforge/internal/domain"
)

// Gemini implements Client over the Gemini API
type Gemini struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed client
func NewGemini(ctx context.Context, apiKey string, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingAPICredentials
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, logger: logger}, nil
}

// Generate performs one generation call
func (g *Gemini) Generate(ctx context.Context, req *GenerateRequest) (*Reply, error) {
	cfg := &genai.GenerateContentConfig{}

	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	for _, c := range req.Capabilities {
		switch c {
		case CapabilityURLContext:
			cfg.Tools = append(cfg.Tools, &genai.Tool{URLContext: &genai.URLContext{}})
		case CapabilityWebSearch:
			cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		}
	}

	if req.OutputFormat == OutputFormatSchema {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = lessonSchema()
	}

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if len(p.Data) > 0 {
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
			})
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	reply := &Reply{}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		g.logger.Warn("prompt blocked by safety filters",
			zap.String("reason", string(resp.PromptFeedback.BlockReason)))
		reply.SafetyBlocked = true
		return reply, nil
	}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.FinishReason == genai.FinishReasonSafety {
			g.logger.Warn("candidate stopped by safety filters")
			reply.SafetyBlocked = true
			return reply, nil
		}

		if gm := cand.GroundingMetadata; gm != nil {
			for _, chunk := range gm.GroundingChunks {
				if chunk.Web == nil || chunk.Web.URI == "" {
					continue
				}
				reply.GroundingChunks = append(reply.GroundingChunks, GroundingChunk{
					URI:   chunk.Web.URI,
					Title: chunk.Web.Title,
				})
			}
		}

		if um := cand.URLContextMetadata; um != nil {
			for _, m := range um.URLMetadata {
				reply.URLRetrievals = append(reply.URLRetrievals, URLRetrieval{
					URI:    m.RetrievedURL,
					Status: string(m.URLRetrievalStatus),
				})
			}
		}
	}

	reply.Text = resp.Text()
	return reply, nil
}

// lessonSchema is the machine-checked output schema for lesson generation:
// an ordered array of sections, each with a title and QA pairs
func lessonSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {Type: genai.TypeString},
				"qa_pairs": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"question": {Type: genai.TypeString},
							"answer":   {Type: genai.TypeString},
						},
						Required: []string{"question", "answer"},
					},
				},
			},
			Required: []string{"title", "qa_pairs"},
		},
	}
}
