package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-mysql-org/go-mysql/mysql"
)

// FileHolder keeps the position in a local file
type FileHolder struct {
	path string
}

func NewFileHolder(path string) *FileHolder {
	return &FileHolder{path: path}
}

// Load implements Holder
func (h *FileHolder) Load() (*mysql.Position, error) {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	pos, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// Save implements Holder. The file is replaced atomically.
func (h *FileHolder) Save(pos mysql.Position) error {
	tmp, err := os.CreateTemp(filepath.Dir(h.path), filepath.Base(h.path)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	if _, err := tmp.WriteString(Format(pos)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save position: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save position: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}
