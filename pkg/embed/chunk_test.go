package embed

import (
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func TestChunkWords(t *testing.T) {
	content := "a b c d e f g h i j"

	tests := []struct {
		name      string
		size      int
		overlap   int
		want      []string
		wantError bool
	}{
		{name: "no overlap", size: 4, overlap: 0, want: []string{"a b c d", "e f g h", "i j"}},
		{name: "overlap", size: 4, overlap: 2, want: []string{"a b c d", "c d e f", "e f g h", "g h i j"}},
		{name: "single chunk", size: 50, overlap: 10, want: []string{content}},
		{name: "overlap too large", size: 4, overlap: 4, wantError: true},
		{name: "zero size", size: 0, overlap: 0, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChunkWords(content, tt.size, tt.overlap)
			if tt.wantError {
				if !errors.Is(err, common.ErrInvalidInput) {
					t.Fatalf("expected invalid input error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChunkWords returned error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("ChunkWords = %q, want %q", got, tt.want)
			}
		})
	}

	if got, _ := ChunkWords("   ", 4, 1); len(got) != 0 {
		t.Fatalf("expected no chunks for blank content, got %q", got)
	}
}
