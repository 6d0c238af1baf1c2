package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `[
  {"client_type": "individual", "id": "1", "first_name": "Ivan", "last_name": "Ivanov", "birth_date": "1990-05-17"},
  {"client_type": "individual", "id": "2", "first_name": "Ivan", "last_name": "Sidorov", "birth_date": "1990-05-17"},
  {"client_type": "organization", "id": "100", "full_name": "ACME LLC", "inn": "1234567890"}
]`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"applicant-lookup"}, args...))
	return out.String(), err
}

func TestLookupCommand(t *testing.T) {
	out, err := run(t, "lookup", "--kind", "individual", "--seed", writeSeed(t),
		"--field", "first_name=Ivan", "--field", "last_name=Ivanov", "--field", "birth_date=1990-05-17")
	require.NoError(t, err)

	var resp map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp["exact"], 1)
	assert.Equal(t, "1", resp["exact"][0]["id"])
	assert.Len(t, resp["without_last_name"], 2)
	assert.Contains(t, resp, "fuzzy")
}

func TestLookupCommand_Organization(t *testing.T) {
	out, err := run(t, "lookup", "-k", "organization", "-s", writeSeed(t), "-f", "inn=1234567890")
	require.NoError(t, err)

	var resp map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp["exact"], 1)
	assert.Equal(t, "100", resp["exact"][0]["id"])
	assert.Contains(t, resp, "without_inn")
}

func TestLookupCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing kind", []string{"lookup"}},
		{"unknown kind", []string{"lookup", "--kind", "company"}},
		{"bad field", []string{"lookup", "--kind", "individual", "--field", "first_name"}},
		{"unknown field", []string{"lookup", "--kind", "individual", "--field", "full_name=ACME"}},
		{"bad date", []string{"lookup", "--kind", "individual", "--field", "birth_date=1990-02-31"}},
		{"bad weight", []string{"--weight", "first_name=-1", "lookup", "--kind", "individual"}},
		{"bad threshold", []string{"--threshold", "1.5", "lookup", "--kind", "individual"}},
		{"missing seed", []string{"lookup", "--kind", "individual", "--seed", "/nonexistent/seed.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestWeightsCommand(t *testing.T) {
	out, err := run(t, "--weight", "first_name=2.5", "weights")
	require.NoError(t, err)
	assert.Contains(t, out, "first_name")
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "threshold")
	assert.Contains(t, out, "0.3")
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, schema, "properties")

	out, err = run(t, "schema", "--batch")
	require.NoError(t, err)
	assert.Contains(t, out, "requests")
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{
		"full_name= ACME ",
		`legal_address={"city": "Moscow"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, " ACME ", fields["full_name"])
	assert.Equal(t, map[string]interface{}{"city": "Moscow"}, fields["legal_address"])

	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
	_, err = parseFields([]string{`legal_address={"city"`})
	assert.Error(t, err)
}

func TestActivitiesCommand(t *testing.T) {
	out, err := run(t, "activities", "--registry-version", "2.0.0")
	require.NoError(t, err)

	var reg struct {
		Version    string `json:"version"`
		Activities []struct {
			TaskType string `json:"taskType"`
		} `json:"activities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reg))
	assert.Equal(t, "2.0.0", reg.Version)
	require.Len(t, reg.Activities, 2)
	assert.Equal(t, "validate-lookup-request", reg.Activities[0].TaskType)
	assert.Equal(t, "lookup-applicant", reg.Activities[1].TaskType)

	_, err = run(t, "activities", "--config", "/nonexistent/config.yaml")
	assert.Error(t, err)
}
