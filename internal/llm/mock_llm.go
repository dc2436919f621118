package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of Client and Streamer using testify/mock.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Summarize(ctx context.Context, text string) (string, []string, error) {
	args := m.Called(ctx, text)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).([]string), args.Error(2)
}

func (m *MockClient) Answer(ctx context.Context, question, contextText string) (string, float32, error) {
	args := m.Called(ctx, question, contextText)
	return args.String(0), float32(args.Get(1).(float64)), args.Error(2)
}

func (m *MockClient) StreamAnswer(ctx context.Context, question, contextText string, onDelta func(string) error) (string, error) {
	args := m.Called(ctx, question, contextText, onDelta)
	answer := args.String(0)
	if onDelta != nil && answer != "" {
		if err := onDelta(answer); err != nil {
			return "", err
		}
	}
	return answer, args.Error(1)
}
