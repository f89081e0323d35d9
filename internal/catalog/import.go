package catalog

import (
	"context"
	"fmt"
)

// Import saves datasets into store in order and returns the saved copies.
// It stops at the first failure.
func Import(ctx context.Context, store Store, datasets []Dataset) ([]Dataset, error) {
	saved := make([]Dataset, 0, len(datasets))
	for _, d := range datasets {
		s, err := store.SaveDataset(ctx, d)
		if err != nil {
			return saved, fmt.Errorf("failed to import dataset %s: %w", d.Name, err)
		}
		saved = append(saved, s)
	}
	return saved, nil
}
