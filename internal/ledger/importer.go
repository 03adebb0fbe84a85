package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ImportResult summarizes one imported file.
type ImportResult struct {
	Path     string
	Appended int
	Skipped  int
}

// Import appends the blocks of a CBOR sequence file to idx. Blocks already on
// the chain are skipped. The context is checked between blocks.
func Import(ctx context.Context, idx *Index, path string) (ImportResult, error) {
	result := ImportResult{Path: path}
	f, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("open block file: %w", err)
	}
	defer f.Close()

	dec := decMode.NewDecoder(f)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var b Block
		if err := dec.Decode(&b); err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return result, fmt.Errorf("read block file %s after %d blocks: %w", path, result.Appended+result.Skipped, err)
		}
		if idx.Contains(b.Hash()) {
			result.Skipped++
			continue
		}
		if err := idx.Append(ctx, b); err != nil {
			return result, err
		}
		result.Appended++
	}
}
