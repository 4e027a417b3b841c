package sqlgen

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stringer struct{ s string }

func (s stringer) String() string { return s.s }

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "NULL"},
		{true, "1"},
		{int64(-3), "-3"},
		{uint32(7), "7"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{1.25, "1.25"},
		{float32(0.5), "0.5"},
		{"a", "'a'"},
		{"it's", `'it\'s'`},
		{"a\nb\\", `'a\nb\\'`},
		{[]byte("raw"), "'raw'"},
		{time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), "'2020-01-02 03:04:05'"},
		{time.Date(2020, 1, 2, 3, 4, 5, 120000000, time.UTC), "'2020-01-02 03:04:05.12'"},
		{stringer{"10.50"}, "'10.50'"},
	}
	for _, tt := range tests {
		if got := Literal(tt.in); got != tt.want {
			t.Errorf("Literal(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMogrify(t *testing.T) {
	got, err := Mogrify("SELECT ?, `a?b`, 'q?', \"d?\", 'x\\'?', ?", []interface{}{1, "z"})
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT 1, `a?b`, 'q?', \"d?\", 'x\\'?', 'z'"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestMogrifyArgumentCount(t *testing.T) {
	if _, err := Mogrify("? ?", []interface{}{1}); err == nil || !strings.Contains(err.Error(), "not enough") {
		t.Fatalf("expected not enough arguments error, got %v", err)
	}
	if _, err := Mogrify("?", []interface{}{1, 2}); err == nil || !strings.Contains(err.Error(), "too many") {
		t.Fatalf("expected too many arguments error, got %v", err)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("we`ird"); got != "`we``ird`" {
		t.Fatalf("got %s", got)
	}
	got, err := Mogrify("`we``i?rd`=?", []interface{}{1})
	if err != nil {
		t.Fatal(err)
	}
	if got != "`we``i?rd`=1" {
		t.Fatalf("got %s", got)
	}
}

func TestLiteralDecimal(t *testing.T) {
	d, err := decimal.NewFromString("-12.345")
	if err != nil {
		t.Fatal(err)
	}
	if got := Literal(d); got != "-12.345" {
		t.Errorf("Literal(decimal) = %q", got)
	}
	got, err := Mogrify("UPDATE t SET price=? WHERE id=?", []interface{}{d, int64(7)})
	if err != nil {
		t.Fatal(err)
	}
	if want := "UPDATE t SET price=-12.345 WHERE id=7"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
