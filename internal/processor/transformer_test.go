package processor

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"updatestream-cdc/internal/updatestream"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func dmlEvent(table string) *updatestream.ChangeEvent {
	return &updatestream.ChangeEvent{
		Category:  updatestream.CategoryDML,
		TableName: table,
		Timestamp: 1700000000,
		GroupId:   "g-1",
		PkRows: []updatestream.PkRow{
			{{Column: "id", Value: float64(42)}},
		},
	}
}

func TestTransformerDisabledPassesThrough(t *testing.T) {
	tr, err := NewTransformer(nil, testLogger())
	require.NoError(t, err)

	event := dmlEvent("users")
	out, err := tr.Transform(event)
	require.NoError(t, err)
	assert.Same(t, event, out)
}

func TestTransformerDropRule(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Rules: []RuleConfig{
			{Table: "audit_log", Drop: true},
		},
	}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	_, err = tr.Transform(dmlEvent("audit_log"))
	require.ErrorIs(t, err, ErrEventRejected)

	out, err := tr.Transform(dmlEvent("users"))
	require.NoError(t, err)
	assert.Equal(t, "users", out.TableName)
}

func TestTransformerCategoryFilter(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Rules: []RuleConfig{
			{Table: "users", Categories: []string{"dml"}},
		},
	}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	out, err := tr.Transform(dmlEvent("users"))
	require.NoError(t, err)
	assert.Equal(t, updatestream.CategoryDML, out.Category)

	ddl := dmlEvent("users")
	ddl.Category = updatestream.CategoryDDL
	_, err = tr.Transform(ddl)
	require.ErrorIs(t, err, ErrEventRejected)
}

func TestTransformerFirstMatchingRuleWins(t *testing.T) {
	cfg := &Config{
		Enabled: true,
		Rules: []RuleConfig{
			{Table: "users", Drop: true},
			{Table: "", Categories: []string{"DML", "DDL", "POS"}},
		},
	}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	_, err = tr.Transform(dmlEvent("users"))
	require.ErrorIs(t, err, ErrEventRejected)

	out, err := tr.Transform(dmlEvent("orders"))
	require.NoError(t, err)
	assert.Equal(t, "orders", out.TableName)
}

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transform.js")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestTransformerJSRewrite(t *testing.T) {
	script := writeScript(t, `
function transform(event) {
	if (event.table === "secrets") {
		return null;
	}
	event.sql = "";
	event.table = event.table.toUpperCase();
	return event;
}
`)
	cfg := &Config{Enabled: true, JSScript: script}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	event := dmlEvent("users")
	event.Sql = "INSERT INTO users VALUES (42)"
	out, err := tr.Transform(event)
	require.NoError(t, err)
	assert.Equal(t, "USERS", out.TableName)
	assert.Empty(t, out.Sql)
	assert.Equal(t, "g-1", out.GroupId)
	require.Len(t, out.PkRows, 1)
	assert.Equal(t, updatestream.PkRow{{Column: "id", Value: float64(42)}}, out.PkRows[0])

	_, err = tr.Transform(dmlEvent("secrets"))
	require.ErrorIs(t, err, ErrEventRejected)
}

func TestTransformerJSKeepsAddedFields(t *testing.T) {
	script := writeScript(t, `
function transform(event) {
	event.enriched = "yes";
	event.source = "updatestream";
	return event;
}
`)
	cfg := &Config{Enabled: true, JSScript: script}
	tr, err := NewTransformer(cfg, testLogger())
	require.NoError(t, err)

	out, err := tr.Transform(dmlEvent("users"))
	require.NoError(t, err)

	// Script output is carried verbatim for the publisher.
	require.NotEmpty(t, out.RawJSON)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out.RawJSON, &payload))
	assert.Equal(t, "yes", payload["enriched"])
	assert.Equal(t, "updatestream", payload["source"])
	assert.Equal(t, "users", payload["table"])
}

func TestTransformerJSMissingFunction(t *testing.T) {
	script := writeScript(t, `var notATransform = 1;`)
	cfg := &Config{Enabled: true, JSScript: script}

	_, err := NewTransformer(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform(event)")
}

func TestTransformerJSScriptMissing(t *testing.T) {
	cfg := &Config{Enabled: true, JSScript: filepath.Join(t.TempDir(), "nope.js")}

	_, err := NewTransformer(cfg, testLogger())
	require.Error(t, err)
}
