package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/updatestream"
)

// ErrEventRejected is returned when a rule or the JavaScript transform
// function drops an event.
var ErrEventRejected = errors.New("event rejected by transformer")

// Config configures event transformation before publishing.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// JSScript is an optional path to a script defining a
	// transform(event) function. Returning null or undefined drops the
	// event; any other returned object replaces it.
	JSScript string `yaml:"js_script"`

	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig filters events by table and category. The first matching rule
// wins; events matching no rule pass through unchanged.
type RuleConfig struct {
	Table      string   `yaml:"table"`      // empty matches all tables
	Categories []string `yaml:"categories"` // empty keeps all categories
	Drop       bool     `yaml:"drop"`
}

// Transformer transforms change events based on configuration rules and an
// optional JavaScript hook. A Transformer is driven by a single caller; the
// embedded JS runtime is not safe for concurrent use.
type Transformer struct {
	logger      *logrus.Logger
	rules       []*ruleMatcher
	vm          *goja.Runtime
	transformFn goja.Callable
}

type ruleMatcher struct {
	table      string
	categories map[string]bool
	drop       bool
}

// NewTransformer creates a transformer from cfg. A nil or disabled config
// yields a transformer that passes every event through.
func NewTransformer(cfg *Config, logger *logrus.Logger) (*Transformer, error) {
	t := &Transformer{logger: logger}
	if cfg == nil || !cfg.Enabled {
		return t, nil
	}

	for _, rc := range cfg.Rules {
		m := &ruleMatcher{table: rc.Table, drop: rc.Drop}
		if len(rc.Categories) > 0 {
			m.categories = make(map[string]bool, len(rc.Categories))
			for _, c := range rc.Categories {
				m.categories[strings.ToUpper(c)] = true
			}
		}
		t.rules = append(t.rules, m)
	}

	if cfg.JSScript != "" {
		if err := t.loadScript(cfg.JSScript); err != nil {
			return nil, err
		}
		logger.Infof("Loaded JavaScript transform from %s", cfg.JSScript)
	}
	return t, nil
}

func (t *Transformer) loadScript(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read transform script: %w", err)
	}

	vm := goja.New()
	if err := t.setupConsoleBindings(vm); err != nil {
		return err
	}
	if _, err := vm.RunString(string(src)); err != nil {
		return fmt.Errorf("failed to evaluate transform script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return fmt.Errorf("transform script must define a transform(event) function")
	}
	t.vm = vm
	t.transformFn = fn
	return nil
}

// Transform applies rule matching and the optional JavaScript hook. It
// returns ErrEventRejected when the event should be dropped.
func (t *Transformer) Transform(event *updatestream.ChangeEvent) (*updatestream.ChangeEvent, error) {
	if rule := t.matchRule(event); rule != nil {
		if rule.drop {
			return nil, ErrEventRejected
		}
		if rule.categories != nil && !rule.categories[strings.ToUpper(event.Category)] {
			return nil, ErrEventRejected
		}
	}
	if t.transformFn == nil {
		return event, nil
	}
	return t.transformJS(event)
}

func (t *Transformer) matchRule(event *updatestream.ChangeEvent) *ruleMatcher {
	for _, rule := range t.rules {
		if rule.table == "" || strings.EqualFold(rule.table, event.TableName) {
			return rule
		}
	}
	return nil
}

// transformJS round-trips the event through JSON so the script sees the
// same shape downstream consumers do.
func (t *Transformer) transformJS(event *updatestream.ChangeEvent) (*updatestream.ChangeEvent, error) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	parsed, err := t.vm.RunString("(JSON.parse)")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve JSON.parse: %w", err)
	}
	parseFn, ok := goja.AssertFunction(parsed)
	if !ok {
		return nil, fmt.Errorf("JSON.parse is not callable")
	}
	input, err := parseFn(goja.Undefined(), t.vm.ToValue(string(eventJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event JSON: %w", err)
	}

	result, err := t.transformFn(goja.Undefined(), input)
	if err != nil {
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, ErrEventRejected
	}

	resultJSON, err := json.Marshal(result.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transform result: %w", err)
	}
	transformed := &updatestream.ChangeEvent{}
	if err := json.Unmarshal(resultJSON, transformed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transform result: %w", err)
	}
	// Keep the script's output verbatim so fields outside the known set
	// still reach the publisher.
	transformed.RawJSON = resultJSON
	return transformed, nil
}

// setupConsoleBindings exposes console.log/warn/error to scripts, routed to
// the service logger.
func (t *Transformer) setupConsoleBindings(vm *goja.Runtime) error {
	formatArgs := func(call goja.FunctionCall) string {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		return fmt.Sprint(args...)
	}

	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		t.logger.Info(formatArgs(call))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := console.Set("warn", func(call goja.FunctionCall) goja.Value {
		t.logger.Warn(formatArgs(call))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := console.Set("error", func(call goja.FunctionCall) goja.Value {
		t.logger.Error(formatArgs(call))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	return vm.Set("console", console)
}
