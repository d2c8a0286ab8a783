package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeData(t *testing.T) {
	for _, nt := range AllNodeTypes() {
		t.Run(string(nt), func(t *testing.T) {
			d, err := NewNodeData(nt)
			require.NoError(t, err)
			assert.Equal(t, nt, d.Type())
			assert.NotEmpty(t, d.Base().Label)
		})
	}

	_, err := NewNodeData("audio")
	assert.Error(t, err)
}

func TestApplyPatch_LoadingAndErrorExclusive(t *testing.T) {
	tests := []struct {
		name        string
		start       Common
		patch       DataPatch
		wantLoading bool
		wantError   string
	}{
		{
			name:        "loading clears error",
			start:       Common{Error: "boom"},
			patch:       DataPatch{IsLoading: Ptr(true)},
			wantLoading: true,
		},
		{
			name:      "error clears loading",
			start:     Common{IsLoading: true},
			patch:     DataPatch{Error: Ptr("failed")},
			wantError: "failed",
		},
		{
			name:      "error wins over loading in the same patch",
			patch:     DataPatch{IsLoading: Ptr(true), Error: Ptr("failed")},
			wantError: "failed",
		},
		{
			name:  "clearing both",
			start: Common{IsLoading: true},
			patch: DataPatch{IsLoading: Ptr(false), Error: Ptr("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyPatch(ImageData{Common: tt.start}, tt.patch).Base()
			assert.Equal(t, tt.wantLoading, got.IsLoading)
			assert.Equal(t, tt.wantError, got.Error)
			assert.False(t, got.IsLoading && got.Error != "")
		})
	}
}

func TestApplyPatch_MediaURLPerType(t *testing.T) {
	url := "https://cdn.example.com/a.png"
	p := DataPatch{MediaURL: &url}

	assert.Equal(t, url, ApplyPatch(ImageData{}, p).MediaURL())
	assert.Equal(t, url, ApplyPatch(VideoData{}, p).MediaURL())
	assert.Equal(t, url, ApplyPatch(ModelData{}, p).MediaURL())
	assert.Equal(t, "", ApplyPatch(TextData{}, p).MediaURL())
}

func TestApplyPatch_DoesNotMutateInput(t *testing.T) {
	orig := TextData{Common: Common{Label: "Text"}, FontType: "serif"}

	next := ApplyPatch(orig, DataPatch{FontType: Ptr("mono"), Label: Ptr("Title")})

	assert.Equal(t, "serif", orig.FontType)
	assert.Equal(t, "mono", next.(TextData).FontType)
	assert.Equal(t, "Title", next.Base().Label)
}

func TestPromptOf(t *testing.T) {
	assert.Equal(t, "a cat", PromptOf(TextData{Text: "a cat"}))
	assert.Equal(t, "a dog", PromptOf(VideoData{Prompt: "a dog"}))
	assert.Equal(t, "", PromptOf(nil))
}

func TestCropRecord_SourceRect(t *testing.T) {
	rec := NewCropRecord(Rect{Left: 60, Top: 40, Width: 100, Height: 50}, Scale{X: 2, Y: 2})

	src := rec.SourceRect(10, 20)

	assert.Equal(t, Rect{Left: 25, Top: 10, Width: 50, Height: 25}, src)
	assert.Equal(t, Scale{X: 2, Y: 2}, rec.Scale())
}

func TestRect_Intersect(t *testing.T) {
	a := Rect{Left: 0, Top: 0, Width: 10, Height: 10}

	assert.Equal(t, Rect{Left: 5, Top: 5, Width: 5, Height: 5}, a.Intersect(Rect{Left: 5, Top: 5, Width: 20, Height: 20}))
	assert.True(t, a.Intersect(Rect{Left: 20, Top: 20, Width: 1, Height: 1}).IsEmpty())
}
