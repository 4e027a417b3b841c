package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/shopspring/decimal"
)

// Escaper substitutes the positional placeholders of a template with
// quoted literals.
type Escaper interface {
	Mogrify(template string, args []interface{}) (string, error)
}

// LiteralEscaper renders literals locally with MySQL quoting rules
type LiteralEscaper struct{}

// Mogrify implements Escaper
func (LiteralEscaper) Mogrify(template string, args []interface{}) (string, error) {
	return Mogrify(template, args)
}

// Mogrify replaces every ? outside quoted sections with the literal of the
// next argument. The number of placeholders must match len(args).
func Mogrify(template string, args []interface{}) (string, error) {
	var (
		b     strings.Builder
		quote byte
		next  int
	)
	b.Grow(len(template) + 16*len(args))

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && quote != '`' && i+1 < len(template) {
				i++
				b.WriteByte(template[i])
			} else if c == quote {
				quote = 0
			}
		case c == '`' || c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '?':
			if next >= len(args) {
				return "", fmt.Errorf("not enough arguments for template: %d given", len(args))
			}
			b.WriteString(Literal(args[next]))
			next++
		default:
			b.WriteByte(c)
		}
	}
	if next != len(args) {
		return "", fmt.Errorf("too many arguments for template: %d placeholders, %d given", next, len(args))
	}
	return b.String(), nil
}

// Literal renders a single value as a MySQL literal
func Literal(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return quote(x)
	case []byte:
		return quote(string(x))
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return quote(x.Format("2006-01-02 15:04:05.999999"))
	case fmt.Stringer:
		return quote(x.String())
	default:
		return quote(fmt.Sprintf("%v", x))
	}
}

func quote(s string) string {
	return "'" + mysql.Escape(s) + "'"
}

// QuoteIdentifier wraps a schema, table or column name in backticks
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
