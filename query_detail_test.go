package soarls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/soarls/internal/config"
)

func TestHover_Procedure(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	h := q.Hover(uriIn(dir, "load.soar"), pos(2, 1))
	require.NotNil(t, h)
	assert.Equal(t, "foo a {b 2}\n\nAdds things.", h.Contents)
	assert.Equal(t, rng(2, 0, 2, 7), h.Range)
}

func TestHover_FullComment(t *testing.T) {
	w, dir := newTestWorkspace(t, agentFiles)
	analyzeNow(t, w)
	full := true
	w.Configure(config.Settings{FullCommentHover: &full})

	h := w.Query().Hover(uriIn(dir, "load.soar"), pos(2, 1))
	require.NotNil(t, h)
	assert.Equal(t, "foo a {b 2}\n\nAdds things.\nSecond line.", h.Contents)
}

func TestHover_Variable(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	h := q.Hover(uriIn(dir, "load.soar"), pos(3, 6))
	require.NotNil(t, h)
	assert.Equal(t, "primary", h.Contents)
	assert.Equal(t, rng(3, 5, 3, 10), h.Range)

	h = q.Hover(uriIn(dir, "show.soar"), pos(0, 6))
	require.NotNil(t, h)
	assert.Equal(t, "primary: primary\nsecondary: secondary", h.Contents)
	assert.Equal(t, rng(0, 5, 0, 10), h.Range)
}

func TestHover_Nothing(t *testing.T) {
	q, dir := newTestQueryBuilder(t)
	assert.Nil(t, q.Hover(uriIn(dir, "load.soar"), pos(0, 1)))
	assert.Nil(t, q.Hover(uriIn(dir, "load.soar"), pos(1, 12)))
}

func TestSignatureHelp(t *testing.T) {
	q, dir := newTestQueryBuilder(t)
	load := uriIn(dir, "load.soar")

	tests := []struct {
		name      string
		at        Position
		signature int
		parameter int
	}{
		{"on the head", pos(2, 1), 1, 0},
		{"first argument", pos(2, 4), 0, 0},
		{"end of first argument", pos(2, 5), 0, 0},
		{"second argument", pos(2, 6), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := q.SignatureHelp(load, tt.at)
			require.NotNil(t, h)
			require.Len(t, h.Signatures, 2)
			assert.Equal(t, "foo a", h.Signatures[0].Label)
			assert.Equal(t, "foo a {b 2}", h.Signatures[1].Label)
			assert.Equal(t, []ParameterInformation{{Label: "a"}, {Label: "{b 2}"}}, h.Signatures[1].Parameters)
			assert.Equal(t, "Adds things.\nSecond line.", h.Signatures[1].Documentation)
			assert.Equal(t, tt.signature, h.ActiveSignature)
			assert.Equal(t, tt.parameter, h.ActiveParameter)
		})
	}
}

func TestSignatureHelp_AfterTrailingSpace(t *testing.T) {
	w, dir := newTestWorkspace(t, map[string]string{
		"soarAgents.json": `{"entryPoints": [{"path": "load.soar"}]}`,
		"load.soar":       "proc foo {a {b 2}} {}\nfoo 1 \n",
	})
	analyzeNow(t, w)

	h := w.Query().SignatureHelp(uriIn(dir, "load.soar"), pos(1, 6))
	require.NotNil(t, h)
	assert.Equal(t, 1, h.ActiveSignature)
	assert.Equal(t, 1, h.ActiveParameter)
}

func TestSignatureHelp_NoCall(t *testing.T) {
	q, dir := newTestQueryBuilder(t)
	assert.Nil(t, q.SignatureHelp(uriIn(dir, "load.soar"), pos(0, 3)))
}
