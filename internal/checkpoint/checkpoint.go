// Package checkpoint records the last processed binlog coordinate so a
// tailing run can be resumed.
package checkpoint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-mysql-org/go-mysql/mysql"
)

// Holder persists a binlog position
type Holder interface {
	// Load returns nil when nothing was saved yet
	Load() (*mysql.Position, error)
	Save(pos mysql.Position) error
}

// Format renders a position as "filename:position"
func Format(pos mysql.Position) string {
	return fmt.Sprintf("%s:%d", pos.Name, pos.Pos)
}

// Parse reads a "filename:position" string. The last colon separates the
// two so file names may contain colons.
func Parse(s string) (mysql.Position, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return mysql.Position{}, fmt.Errorf("cannot parse mysql position %q", s)
	}
	pos, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("cannot parse mysql position %q: %w", s, err)
	}
	return mysql.Position{Name: s[:i], Pos: uint32(pos)}, nil
}
