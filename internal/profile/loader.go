// Package profile loads the source profile document the index is built
// from, either from a local file or from object storage.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/askfolio/askfolio/internal/domain"
	"github.com/askfolio/askfolio/internal/storage"
)

// ObjectFetcher downloads a document from object storage.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, key string) ([]byte, error)
}

// Loader reads and parses the profile JSON. It implements
// service.ProfileLoader.
type Loader struct {
	path    string
	fetcher ObjectFetcher
	key     string
}

// NewFileLoader loads the profile from a local JSON file.
func NewFileLoader(path string) *Loader {
	return &Loader{path: path}
}

// NewObjectLoader loads the profile from object storage under key.
func NewObjectLoader(fetcher ObjectFetcher, key string) *Loader {
	return &Loader{fetcher: fetcher, key: key}
}

// Load reads and parses the profile document. A missing document maps to
// domain.ErrProfileNotFound so the indexer can report a clean failure.
func (l *Loader) Load(ctx context.Context) (*domain.Profile, error) {
	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid profile document %s: %w", l.Source(), err)
	}
	return &p, nil
}

// Source names the document for metadata and logs, e.g. "profile.json".
func (l *Loader) Source() string {
	if l.fetcher != nil {
		return filepath.Base(l.key)
	}
	return filepath.Base(l.path)
}

func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if l.fetcher != nil {
		data, err := l.fetcher.FetchObject(ctx, l.key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, domain.NewDomainErrorWithCause(
					domain.ErrCodeNotFound, domain.ErrProfileNotFound.Message, err)
			}
			return nil, fmt.Errorf("failed to fetch profile object: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewDomainErrorWithCause(
				domain.ErrCodeNotFound, domain.ErrProfileNotFound.Message, err)
		}
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return data, nil
}
