package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/pkg/anthropic"
)

// Explainer turns a validation failure into a short operator-facing
// explanation. Explanations are advisory: when the explainer itself fails the
// caller keeps the primary error untouched.
type Explainer interface {
	Explain(ctx context.Context, doc *model.Document, cause error) (string, error)
}

type llmExplainer struct {
	llm   anthropic.Client
	model string
}

// NewExplainer creates an LLM-backed Explainer.
func NewExplainer(llm anthropic.Client, mdl string) Explainer {
	if mdl == "" {
		mdl = "claude-haiku-4-5"
	}
	return &llmExplainer{llm: llm, model: mdl}
}

func (e *llmExplainer) Explain(ctx context.Context, doc *model.Document, cause error) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "validate: marshal document for explainer")
	}

	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 512,
		System: "A regulation document failed an automated pre-publish check. " +
			"In two or three sentences, tell the operator what is wrong with the document and what to fix. Plain text only.",
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Failure: %v\n\nDocument:\n%s", cause, body),
		}},
	})
	if err != nil {
		return "", eris.Wrap(err, "validate: explainer message")
	}
	resp.Usage.LogUsage(e.model, "explain")
	return resp.Text(), nil
}
