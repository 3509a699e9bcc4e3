package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/petvoyage/regsync/internal/model"
	"github.com/petvoyage/regsync/internal/research"
	"github.com/petvoyage/regsync/pkg/anthropic"
	"github.com/petvoyage/regsync/pkg/perplexity"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetRecord(ctx context.Context, naturalKey string) (*model.Record, error) {
	args := m.Called(ctx, naturalKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Record), args.Error(1)
}

func (m *mockStore) UpsertRecord(ctx context.Context, doc *model.Document, patch map[string]any) (*model.PublishResult, error) {
	args := m.Called(ctx, doc, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishResult), args.Error(1)
}

func (m *mockStore) InsertAudit(ctx context.Context, rec *model.AuditRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockStore) FindLatestAudit(ctx context.Context, naturalKey string) (*model.AuditRecord, error) {
	args := m.Called(ctx, naturalKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) Name() string { return "mock" }

func (m *mockReader) ReadPage(ctx context.Context, url string) (*research.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*research.Page), args.Error(1)
}

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

type mockExplainer struct {
	mock.Mock
}

func (m *mockExplainer) Explain(ctx context.Context, doc *model.Document, cause error) (string, error) {
	args := m.Called(ctx, doc, cause)
	return args.String(0), args.Error(1)
}
