package embed

import (
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// ChunkWords splits content into windows of chunkSize words where
// consecutive windows share overlapSize words. The last window may be
// shorter. Empty content yields no chunks.
func ChunkWords(content string, chunkSize, overlapSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", common.ErrInvalidInput, chunkSize)
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", common.ErrInvalidInput, overlapSize, chunkSize)
	}

	words := strings.Fields(content)
	if len(words) == 0 {
		return nil, nil
	}

	step := chunkSize - overlapSize
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+chunkSize, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
