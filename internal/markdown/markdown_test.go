package markdown_test

import (
	"testing"

	"github.com/MegaGrindStone/streamchat/internal/markdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name         string
		src          string
		wantContains []string
		wantMissing  []string
	}{
		{
			name:         "Emphasis",
			src:          "**bold** and _italic_",
			wantContains: []string{"<strong>bold</strong>", "<em>italic</em>"},
		},
		{
			name:         "Table",
			src:          "| a | b |\n|---|---|\n| 1 | 2 |",
			wantContains: []string{"<table>", "<td>1</td>"},
		},
		{
			name:         "Code fence",
			src:          "```go\nfmt.Println(\"hi\")\n```",
			wantContains: []string{"<pre", "Println"},
		},
		{
			name:         "Raw HTML is not passed through",
			src:          "<script>alert(1)</script>",
			wantMissing:  []string{"<script>"},
			wantContains: []string{"raw HTML omitted"},
		},
		{
			name:         "Hard wraps",
			src:          "line one\nline two",
			wantContains: []string{"line one<br"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := markdown.Render(tt.src)
			require.NoError(t, err)
			for _, s := range tt.wantContains {
				assert.Contains(t, string(got), s)
			}
			for _, s := range tt.wantMissing {
				assert.NotContains(t, string(got), s)
			}
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	got, err := markdown.Render("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlain(t *testing.T) {
	got := markdown.Plain("a < b\n**not bold**")
	assert.Equal(t, "a &lt; b<br>**not bold**", string(got))
}
