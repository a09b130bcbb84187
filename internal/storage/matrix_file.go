package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/wenqinglim/euterpe/internal/domain"
	"github.com/wenqinglim/euterpe/internal/harmony"
)

// ReadMatrix loads a transition matrix stored as a flat JSON object of key to probability.
func ReadMatrix(ctx context.Context, location string) (harmony.Matrix, error) {
	fs := afs.New()
	location = url.Normalize(location, file.Scheme)

	exists, err := fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check matrix: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("matrix %w: %s", domain.ErrNotFound, location)
	}

	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}

	var m harmony.Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: matrix %s: %v", domain.ErrInvalidInput, location, err)
	}
	return m, nil
}

// WriteMatrix stores m as indented JSON. Keys are written in sorted order.
func WriteMatrix(ctx context.Context, location string, m harmony.Matrix) error {
	if m == nil {
		m = harmony.Matrix{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}

	location = url.Normalize(location, file.Scheme)
	if err := afs.New().Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}
