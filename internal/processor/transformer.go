package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"binlog2sql/internal/models"
)

// ErrStatementRejected is returned when the script drops a statement by
// returning null or undefined
var ErrStatementRejected = errors.New("statement rejected by transformer")

// Transformer runs a user JavaScript function on every rendered statement.
// The function gets the statement object and returns it (possibly edited),
// a replacement SQL string, or null to drop the statement.
type Transformer struct {
	vm       *goja.Runtime
	fn       goja.Callable
	logger   *logrus.Logger
	natsConn *nats.Conn // NATS connection for JavaScript bindings
}

// NewTransformer loads the script file
func NewTransformer(path string, logger *logrus.Logger, natsConn *nats.Conn) (*Transformer, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JavaScript script file: %w", err)
	}
	t, err := newTransformer(string(script), logger, natsConn)
	if err != nil {
		return nil, fmt.Errorf("invalid JavaScript script: %w", err)
	}
	logger.Infof("Loaded JavaScript transformation script: %s", path)
	return t, nil
}

func newTransformer(script string, logger *logrus.Logger, natsConn *nats.Conn) (*Transformer, error) {
	t := &Transformer{vm: goja.New(), logger: logger, natsConn: natsConn}

	if err := t.setupConsoleBindings(); err != nil {
		return nil, fmt.Errorf("failed to setup console bindings: %w", err)
	}
	if natsConn != nil {
		if err := t.setupNATSBindings(); err != nil {
			return nil, fmt.Errorf("failed to setup NATS bindings: %w", err)
		}
	}

	// The script is either an anonymous function expression or defines
	// a function named transform.
	result, err := t.vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	if fn, ok := goja.AssertFunction(result); ok {
		t.fn = fn
		return t, nil
	}
	if fn, ok := goja.AssertFunction(t.vm.Get("transform")); ok {
		t.fn = fn
		return t, nil
	}
	return nil, errors.New("script must export a function (either anonymous function or named 'transform' function)")
}

// Transform applies the script to a statement
func (t *Transformer) Transform(event *models.ChangeEvent) (*models.ChangeEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal statement: %w", err)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statement: %w", err)
	}

	result, err := t.fn(goja.Undefined(), t.vm.ToValue(obj))
	if err != nil {
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		t.logger.Debugf("Statement rejected by JavaScript transformer: %s.%s (type: %s)", event.Database, event.Table, event.Type)
		return nil, ErrStatementRejected
	}

	out := *event
	switch v := result.Export().(type) {
	case string:
		out.SQL = v
	case map[string]interface{}:
		if s, ok := v["sql"].(string); ok {
			out.SQL = s
		}
		if s, ok := v["type"].(string); ok {
			out.Type = s
		}
		if s, ok := v["database"].(string); ok {
			out.Database = s
		}
		if s, ok := v["table"].(string); ok {
			out.Table = s
		}
	default:
		return nil, fmt.Errorf("JavaScript transform function returned %T", v)
	}
	return &out, nil
}

// setupConsoleBindings routes console.* to the logger
func (t *Transformer) setupConsoleBindings() error {
	consoleObj := t.vm.NewObject()

	formatArgs := func(call goja.FunctionCall) string {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
	}
	bind := func(name string, log func(...interface{})) error {
		return consoleObj.Set(name, func(call goja.FunctionCall) goja.Value {
			log(formatArgs(call))
			return goja.Undefined()
		})
	}

	for name, log := range map[string]func(...interface{}){
		"log":   t.logger.Info,
		"info":  t.logger.Info,
		"warn":  t.logger.Warn,
		"error": t.logger.Error,
		"debug": t.logger.Debug,
	} {
		if err := bind(name, log); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}
	return t.vm.Set("console", consoleObj)
}

// setupNATSBindings exposes nats.publish(subject, data) to the script
func (t *Transformer) setupNATSBindings() error {
	natsObj := t.vm.NewObject()

	publishFn := func(call goja.FunctionCall) goja.Value {
		subject := call.Argument(0).String()
		if subject == "" {
			panic(t.vm.NewTypeError("nats.publish: subject is required"))
		}
		dataArg := call.Argument(1)
		if goja.IsUndefined(dataArg) || goja.IsNull(dataArg) {
			panic(t.vm.NewTypeError("nats.publish: data is required"))
		}

		var dataBytes []byte
		switch v := dataArg.Export().(type) {
		case string:
			dataBytes = []byte(v)
		case []byte:
			dataBytes = v
		default:
			var err error
			dataBytes, err = json.Marshal(v)
			if err != nil {
				panic(t.vm.NewTypeError("nats.publish: failed to marshal data: %v", err))
			}
		}

		if err := t.natsConn.Publish(subject, dataBytes); err != nil {
			t.logger.Errorf("NATS publish error: %v", err)
			panic(t.vm.NewGoError(err))
		}
		t.logger.Debugf("Published to NATS subject: %s", subject)
		return goja.Undefined()
	}

	if err := natsObj.Set("publish", publishFn); err != nil {
		return fmt.Errorf("failed to set publish function: %w", err)
	}
	if err := natsObj.Set("flush", func(goja.FunctionCall) goja.Value {
		if err := t.natsConn.FlushTimeout(5 * time.Second); err != nil {
			panic(t.vm.NewGoError(err))
		}
		return goja.Undefined()
	}); err != nil {
		return fmt.Errorf("failed to set flush function: %w", err)
	}
	return t.vm.Set("nats", natsObj)
}
