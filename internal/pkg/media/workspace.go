package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kratos/kratos/v2/log"
)

const workspacePattern = "video-analysis-"

// Workspace is a scratch directory owned by exactly one analysis.
type Workspace struct {
	Root string
}

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}

// WriteInput stores the input payload in the workspace and returns its path.
func (w *Workspace) WriteInput(blob Blob, nameHint string) (string, error) {
	path := w.Path("input" + ExtensionFor(nameHint, blob.MIMEType))
	if err := os.WriteFile(path, blob.Data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write input: %w", err)
	}
	return path, nil
}

// WithWorkspace creates a fresh workspace under root (os.TempDir when empty), runs body,
// and removes the workspace afterwards on every exit path. A failed removal is logged
// and never replaces body's result or error.
func WithWorkspace[T any](root string, logger log.Logger, body func(ws *Workspace) (T, error)) (result T, err error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return result, fmt.Errorf("failed to prepare workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePattern)
	if err != nil {
		return result, fmt.Errorf("failed to create workspace: %w", err)
	}
	helper := log.NewHelper(logger)
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			helper.Warnf("failed to remove workspace %s: %v", dir, rmErr)
		}
	}()
	helper.Debugf("created workspace %s", dir)
	return body(&Workspace{Root: dir})
}
