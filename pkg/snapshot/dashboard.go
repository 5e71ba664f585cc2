// Package snapshot defines the versioned server snapshots livesync keeps in
// sync, plus their canonical encoding, fingerprint and schema.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/grovetools/livesync/errors"
	"github.com/invopop/jsonschema"
)

// Version is the current dashboard snapshot schema version.
const Version = 1

// ID is a server identifier that may be encoded as a JSON string or number.
type ID string

// UnmarshalJSON accepts both "42" and 42.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// JSONSchema describes ID for schema reflection.
func (ID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "integer"},
		},
	}
}

// Dashboard is the aggregated project view served by
// GET /api/project/{id}/dashboard.
type Dashboard struct {
	Version   int      `json:"version" jsonschema:"description=Snapshot schema version"`
	ProjectID string   `json:"projectId" jsonschema:"description=Resource the snapshot was fetched for"`
	Meta      Meta     `json:"meta"`
	Metrics   Metrics  `json:"metrics"`
	Tokens    *Tokens  `json:"tokens,omitempty"`
	Waves     []Wave   `json:"waves"`
	Tasks     []Task   `json:"tasks,omitempty"`
	Plans     *Summary `json:"plans,omitempty"`
}

// Meta identifies the project.
type Meta struct {
	Project   string `json:"project"`
	ProjectID ID     `json:"projectId"`
}

// Metrics holds aggregate progress.
type Metrics struct {
	Throughput Throughput `json:"throughput"`
}

// Throughput is completed vs total task counts.
type Throughput struct {
	Done    int `json:"done"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// Tokens is token usage for the project. The server sends null for projects
// with no recorded usage.
type Tokens struct {
	Total      *float64 `json:"total"`
	AvgPerTask *float64 `json:"avgPerTask"`
	TotalCost  *float64 `json:"totalCost"`
	APICalls   *float64 `json:"apiCalls"`
}

// JSONSchema allows null counters.
func (Tokens) JSONSchema() *jsonschema.Schema {
	nullableNumber := func() *jsonschema.Schema {
		return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "number"}, {Type: "null"}}}
	}
	props := jsonschema.NewProperties()
	for _, key := range []string{"total", "avgPerTask", "totalCost", "apiCalls"} {
		props.Set(key, nullableNumber())
	}
	return &jsonschema.Schema{Type: "object", Properties: props}
}

// Wave is one plan row in the dashboard.
type Wave struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

// Task is a task row, present when the server includes task detail.
type Task struct {
	ID       ID     `json:"id"`
	TaskID   string `json:"task_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	WaveID   string `json:"wave_id,omitempty"`
}

// Summary counts plans by status.
type Summary struct {
	Total int `json:"total"`
	Done  int `json:"done"`
	Doing int `json:"doing"`
	Todo  int `json:"todo"`
}

// DecodeDashboard validates raw against the dashboard schema and decodes it.
// The server reports unknown projects as a 200 with an {"error": ...} body.
func DecodeDashboard(projectID string, raw []byte) (*Dashboard, error) {
	var envelope map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, errors.Malformed("dashboard", err)
	}
	if msg, ok := envelope["error"].(string); ok && msg != "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, msg).
			WithDetail("projectId", projectID)
	}

	envelope["version"] = json.Number(strconv.Itoa(Version))
	envelope["projectId"] = projectID
	if err := validate(kindDashboard, envelope); err != nil {
		return nil, errors.Malformed("dashboard", err)
	}

	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Malformed("dashboard", err)
	}
	d.Version = Version
	d.ProjectID = projectID
	return &d, nil
}

// ToMap converts the snapshot into the generic form stored under "dashboard".
func (d *Dashboard) ToMap() map[string]interface{} {
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
