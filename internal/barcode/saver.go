package barcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clearwatch/internal/declaration"
)

// Saver persists a retrieved barcode document and returns its path.
type Saver interface {
	Save(d declaration.Declaration, data []byte, overwrite bool) (string, error)
}

// FileSaver writes barcode documents under a base directory, one
// subdirectory per tenant.
type FileSaver struct {
	baseDir string
}

// NewFileSaver builds a saver rooted at the given directory.
func NewFileSaver(baseDir string) *FileSaver {
	return &FileSaver{baseDir: baseDir}
}

// Save implements Saver. An existing file is kept as-is unless overwrite is
// set; the existing path is still returned so callers can record it.
func (s *FileSaver) Save(d declaration.Declaration, data []byte, overwrite bool) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("save barcode: empty document for %s", d.Number)
	}

	dir := filepath.Join(s.baseDir, sanitizeComponent(d.TenantCode))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create barcode directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.pdf", d.Number, declaration.FormatDate(d.Date))
	path := filepath.Join(dir, sanitizeComponent(name))

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write barcode: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize barcode: %w", err)
	}
	return path, nil
}

func sanitizeComponent(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(value))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
