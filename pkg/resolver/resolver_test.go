package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	body  string
	err   error
	calls []string
}

func (s *stubSearcher) SearchEntities(ctx context.Context, keyword string, size int) ([]byte, error) {
	s.calls = append(s.calls, keyword)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

func TestResolveBareStringResults(t *testing.T) {
	s := &stubSearcher{body: `{"results": ["Albert Einstein"]}`}
	r := New(s)

	got, err := r.Resolve(context.Background(), "Einst")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{ID: "Albert Einstein", Title: "Albert Einstein", Description: ""}}, got)
	assert.Equal(t, []string{"Einst"}, s.calls)
}

func TestResolveShortQuerySkipsRequest(t *testing.T) {
	s := &stubSearcher{body: `[]`}
	r := New(s)

	for _, q := range []string{"", "E", "  E  "} {
		got, err := r.Resolve(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Empty(t, s.calls)
}

func TestResolveTransportFailure(t *testing.T) {
	transport := errors.New("connection refused")
	r := New(&stubSearcher{err: transport})

	_, err := r.Resolve(context.Background(), "Bohr")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "Bohr", resErr.Query)
	assert.ErrorIs(t, err, transport)
}

func TestResolveMalformedBody(t *testing.T) {
	r := New(&stubSearcher{body: `<!doctype html>`})

	_, err := r.Resolve(context.Background(), "Bohr")
	var resErr *ResolutionError
	assert.ErrorAs(t, err, &resErr)
}

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Candidate
	}{
		{
			name: "bare array of objects",
			body: `[{"id":"Q937","title":"Albert Einstein","description":"physicist"}]`,
			want: []Candidate{{ID: "Q937", Title: "Albert Einstein", Description: "physicist"}},
		},
		{
			name: "items envelope with aliases",
			body: `{"items":[{"key":"k1","name":"Niels Bohr","summary":"Danish"}]}`,
			want: []Candidate{{ID: "k1", Title: "Niels Bohr", Description: "Danish"}},
		},
		{
			name: "label without id uses title as id",
			body: `{"data":[{"label":"Max Planck","snippet":"German"}]}`,
			want: []Candidate{{ID: "Max Planck", Title: "Max Planck", Description: "German"}},
		},
		{
			name: "first present alias wins",
			body: `{"results":null,"items":["a1"],"names":["n1"]}`,
			want: []Candidate{{ID: "a1", Title: "a1"}},
		},
		{
			name: "empty string alias falls through",
			body: `{"results":"","items":["Lise Meitner"]}`,
			want: []Candidate{{ID: "Lise Meitner", Title: "Lise Meitner"}},
		},
		{
			name: "false and zero aliases fall through",
			body: `{"results":false,"items":0,"data":["d1"]}`,
			want: []Candidate{{ID: "d1", Title: "d1"}},
		},
		{
			name: "empty array alias is kept",
			body: `{"results":[],"items":["i1"]}`,
			want: []Candidate{},
		},
		{
			name: "names envelope",
			body: `{"names":["Marie Curie"]}`,
			want: []Candidate{{ID: "Marie Curie", Title: "Marie Curie"}},
		},
		{
			name: "numeric id",
			body: `[{"id":42,"title":"Answer"}]`,
			want: []Candidate{{ID: "42", Title: "Answer"}},
		},
		{
			name: "unknown envelope",
			body: `{"hits":["x"]}`,
			want: []Candidate{},
		},
		{
			name: "alias present but not an array",
			body: `{"results":{"x":1}}`,
			want: []Candidate{},
		},
		{
			name: "scalar body",
			body: `"nothing"`,
			want: []Candidate{},
		},
		{
			name: "untitled object skipped",
			body: `[{"description":"orphan"},"kept"]`,
			want: []Candidate{{ID: "kept", Title: "kept"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
