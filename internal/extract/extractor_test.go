package extract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/pkg/anthropic"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func TestExtract_ParsesFencedDraft(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.System != "" && len(req.Messages) == 1
	})).Return(textResponse("```json\n"+`{
		"natural_key": "france",
		"domain": "country",
		"summary": "Rabies vaccination and microchip required.",
		"official_links": [{"url": "https://agriculture.gouv.fr/pets", "name": "Ministry"}],
		"quarantine_required": "no"
	}`+"\n```"), nil)

	e := New(llm, Config{})
	draft, err := e.Extract(context.Background(), Request{
		NaturalKey: "france",
		Domain:     model.DomainCountry,
		Findings:   &model.ResearchFindings{Notes: "some notes"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Rabies vaccination and microchip required.", draft.Summary)
	assert.Len(t, draft.OfficialLinks, 1)
	assert.Equal(t, "no", draft.QuarantineRequired)
	assert.Empty(t, draft.Unrecognized)
	llm.AssertExpectations(t)
}

func TestExtract_KeyAndDomainForced(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"natural_key": "republic-of-france",
		"domain": "airline",
		"summary": "whatever the model decided"
	}`), nil)

	e := New(llm, Config{})
	draft, err := e.Extract(context.Background(), Request{NaturalKey: "france", Domain: model.DomainCountry})
	require.NoError(t, err)
	assert.Equal(t, "france", draft.NaturalKey)
	assert.Equal(t, string(model.DomainCountry), draft.Domain)
}

func TestExtract_RecordsUnrecognizedKeys(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"natural_key": "france",
		"summary": "ok",
		"hallucinated_field": true
	}`), nil)

	e := New(llm, Config{})
	draft, err := e.Extract(context.Background(), Request{NaturalKey: "france", Domain: model.DomainCountry})
	require.NoError(t, err)
	assert.Equal(t, []string{"hallucinated_field"}, draft.Unrecognized)
}

func TestExtract_LLMFailure(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, eris.New("overloaded"))

	e := New(llm, Config{})
	_, err := e.Extract(context.Background(), Request{NaturalKey: "france", Domain: model.DomainCountry})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: create message")
}

func TestExtract_UnparsableOutput(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not find anything useful."), nil)

	e := New(llm, Config{})
	_, err := e.Extract(context.Background(), Request{NaturalKey: "france", Domain: model.DomainCountry})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse draft")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(&model.Draft{NaturalKey: "france"}))
	assert.True(t, IsEmpty(&model.Draft{Categories: json.RawMessage(`{}`)}))
	assert.True(t, IsEmpty(&model.Draft{Categories: json.RawMessage(`null`)}))

	assert.False(t, IsEmpty(&model.Draft{Summary: "something"}))
	assert.False(t, IsEmpty(&model.Draft{OfficialLinks: []model.Link{{URL: "https://gov.uk/x"}}}))
	assert.False(t, IsEmpty(&model.Draft{Categories: json.RawMessage(`{"dogs":{}}`)}))
}

func TestSyntheticFindings(t *testing.T) {
	doc := &model.Document{
		NaturalKey:    "france",
		Summary:       "Published summary.",
		OfficialLinks: []model.Link{{URL: "https://agriculture.gouv.fr/pets"}},
		SourceDates:   []model.SourceDate{{URL: "https://agriculture.gouv.fr/pets", Date: "2026-01-15"}},
	}

	f := SyntheticFindings(doc, "tighten the dog section")
	assert.True(t, f.Synthetic)
	assert.Equal(t, doc.OfficialLinks, f.OfficialLinks)
	assert.Equal(t, doc.SourceDates, f.SourceDates)
	assert.Contains(t, f.Notes, "Published summary.")
	assert.Contains(t, f.Notes, "tighten the dog section")

	empty := SyntheticFindings(nil, "")
	assert.True(t, empty.Synthetic)
	assert.False(t, empty.HasSources())
}
