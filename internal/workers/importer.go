package workers

import (
	"context"
	"log/slog"

	"coind/internal/ledger"
	"coind/internal/logging"
)

// ChainImporter appends the blocks of -loadblock files to the ledger index
// and exits.
type ChainImporter struct {
	idx    *ledger.Index
	files  []string
	logger *slog.Logger
}

// NewChainImporter returns an importer for files.
func NewChainImporter(idx *ledger.Index, files []string, logger *slog.Logger) *ChainImporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ChainImporter{idx: idx, files: files, logger: logging.NewComponentLogger(logger, "import")}
}

// Run imports every file in order. A broken file is logged and skipped.
func (c *ChainImporter) Run(ctx context.Context) error {
	for _, path := range c.files {
		c.logger.Info("importing blocks", logging.String("file", path))
		result, err := ledger.Import(ctx, c.idx, path)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logging.WarnWithContext(c.logger, "block import failed",
				"block_import_failed",
				logging.String("file", path),
				logging.Int("appended", result.Appended),
				logging.Error(err),
				logging.String(logging.FieldImpact, "chain stays at the last imported block"),
				logging.String(logging.FieldErrorHint, "check the -loadblock file"),
			)
			continue
		}
		height, _ := c.idx.Tip()
		c.logger.Info("blocks imported",
			logging.String("file", path),
			logging.Int("appended", result.Appended),
			logging.Int("skipped", result.Skipped),
			logging.Int64("height", height),
		)
	}
	return nil
}
