package research

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/petvoyage/regsync/pkg/perplexity"
)

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

func (m *mockReader) ReadPage(ctx context.Context, url string) (*Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Page), args.Error(1)
}
