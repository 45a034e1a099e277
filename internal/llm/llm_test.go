package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParsePayloadSingle(t *testing.T) {
	p, err := ParsePayload(Single, []byte("```json\n{\"tenant\": \"ACME\", \"base_rent\": 1200}\n```"))
	require.NoError(t, err)
	assert.False(t, p.IsPortfolio())
	assert.Equal(t, "ACME", p.Single["tenant"])
	assert.Equal(t, json.Number("1200"), p.Single["base_rent"])
	assert.Len(t, p.Objects(), 1)
}

func TestParsePayloadPortfolioWrapped(t *testing.T) {
	raw := `{"properties": [{"property_name": "A"}, {"property_name": "B"}, {"property_name": "C"}]}`
	p, err := ParsePayload(Portfolio, []byte(raw))
	require.NoError(t, err)
	require.True(t, p.IsPortfolio())
	require.Len(t, p.Records, 3)
	assert.Equal(t, "B", p.Records[1]["property_name"])

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"property_name":"A"},{"property_name":"B"},{"property_name":"C"}]`, string(out))
}

func TestParsePayloadPortfolioBareArray(t *testing.T) {
	p, err := ParsePayload(Portfolio, []byte(`[{"a": 1}]`))
	require.NoError(t, err)
	assert.Len(t, p.Records, 1)
}

func TestParsePayloadShapeMismatch(t *testing.T) {
	_, err := ParsePayload(Single, []byte(`[{"a": 1}]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload(Portfolio, []byte(`{"a": 1, "b": 2}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload(Portfolio, []byte(`[{"a": 1}, 2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParsePayloadMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"a": 1`, `{"a": 1} {"b": 2}`} {
		_, err := ParsePayload(Single, []byte(raw))
		assert.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
}

func TestParsePayloadRepairsMissingKeyQuote(t *testing.T) {
	p, err := ParsePayload(Single, []byte(`{"tenant": "ACME", base_rent": 1200}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1200"), p.Single["base_rent"])
}

func TestPayloadMarshalEmpty(t *testing.T) {
	b, err := json.Marshal(Payload{Kind: Portfolio})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = json.Marshal(Payload{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t,
		"This lease is of type Multifamily OM and the following is the text that I need you to extract from. Rent: 1200",
		UserPrompt("Multifamily OM", "Rent: 1200"))
	assert.Contains(t, SystemPrompt(Portfolio), `"properties"`)
	assert.NotEqual(t, SystemPrompt(Single), SystemPrompt(Portfolio))
}

type countingStructurer struct{ calls int }

func (c *countingStructurer) Structure(context.Context, string, string, DocKind) (Payload, error) {
	c.calls++
	return Payload{Single: map[string]any{}}, nil
}

func TestRateLimited(t *testing.T) {
	next := &countingStructurer{}
	assert.Same(t, Structurer(next), RateLimited(next, nil))
	assert.Nil(t, NewLimiter(0, 1))

	s := RateLimited(next, rate.NewLimiter(rate.Limit(1), 1))
	_, err := s.Structure(context.Background(), "Lease", "text", Single)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Structure(ctx, "Lease", "text", Single)
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls)
}
