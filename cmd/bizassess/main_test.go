package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BIZASSESS_DATABASE_DRIVER", "memory")
	t.Setenv("BIZASSESS_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", ""}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSurveyCreateCommand(t *testing.T) {
	out, err := execute(t, "survey", "create", "full", "Full assessment")
	require.NoError(t, err)

	var survey models.Survey
	require.NoError(t, json.Unmarshal([]byte(out), &survey))
	assert.Equal(t, models.SurveyTypeFull, survey.Type)
	assert.Equal(t, "Full assessment", survey.Name)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "structure.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"c","name":"C","subcategories":[]}]`), 0o600))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidStructure, fault.KindOf(err))
	assert.Contains(t, out, "must contain at least one subcategory")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "0", "-3", "x"} {
		_, err := parseID(raw)
		assert.Error(t, err, raw)
	}
}

func TestReadStructureRejectsObjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structure.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"c"}`), 0o600))

	_, err := readStructure(path)
	assert.Equal(t, fault.KindInvalidStructure, fault.KindOf(err))
}
