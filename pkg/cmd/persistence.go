// Package cmd builds the collaborators shared by the ifured commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/dukex/ifured/pkg/persistence"
	"github.com/dukex/ifured/pkg/persistence/file"
)

var supportedPersistenceProviders = []string{"file"}

// NewPersistence opens the run journal at url. A bare path is a file journal.
func NewPersistence(url string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(url)

	switch provider {
	case "file":
		root := strings.TrimPrefix(url, "file://")
		if err := os.MkdirAll(root, 0750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", root, err)
		}

		return file.NewPersistence(root), nil
	default:
		return nil, fmt.Errorf("unsupported journal provider %q, supported: %s", provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(url string) string {
	parts := strings.SplitN(url, "://", 2)
	if len(parts) == 1 {
		return "file"
	}

	return parts[0]
}
