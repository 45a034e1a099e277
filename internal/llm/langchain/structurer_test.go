package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

type scriptedModel struct {
	replies []string
	err     error
	calls   int
	last    []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.last = msgs
	if m.err != nil {
		return nil, m.err
	}
	reply := m.replies[min(m.calls, len(m.replies)-1)]
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestStructureRetriesMalformedOutput(t *testing.T) {
	m := &scriptedModel{replies: []string{"oops", "```json\n[{\"unit\":\"101\"},{\"unit\":\"102\"}]\n```"}}
	s := NewWithModel(m, 0, nil)

	p, err := s.Structure(context.Background(), "Rent Roll", "101 102", llm.Portfolio)
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls)
	assert.Len(t, p.Records, 2)

	require.Len(t, m.last, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.last[0].Role)
	assert.Equal(t, llms.TextPart(llm.UserPrompt("Rent Roll", "101 102")), m.last[1].Parts[0])
}

func TestStructureGivesUpAfterThreeAttempts(t *testing.T) {
	m := &scriptedModel{replies: []string{"nope"}}
	s := NewWithModel(m, 0, nil)

	_, err := s.Structure(context.Background(), "Lease", "text", llm.Single)
	assert.ErrorIs(t, err, llm.ErrMalformedPayload)
	assert.Equal(t, 3, m.calls)
}

func TestStructureServiceErrorIsNotRetried(t *testing.T) {
	boom := errors.New("connection refused")
	m := &scriptedModel{err: boom}
	s := NewWithModel(m, 0, nil)

	_, err := s.Structure(context.Background(), "Lease", "text", llm.Single)
	assert.ErrorIs(t, err, boom)

	_, err = s.Structure(context.Background(), "Lease", "", llm.Single)
	assert.ErrorIs(t, err, llm.ErrEmptyText)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}
