package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestServe(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := Serve("127.0.0.1:0", "", logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ObserveEvent(219)
	ObserveStatement("INSERT")
	SetTailing(true)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"binlog2sql_events_total",
		`binlog2sql_statements_total{kind="INSERT"}`,
		"binlog2sql_log_position 219",
		"binlog2sql_tailing 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output misses %s", want)
		}
	}
}
