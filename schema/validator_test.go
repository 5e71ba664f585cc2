package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "status"],
  "properties": {
    "id": {"type": "string"},
    "status": {"type": "string", "enum": ["pending", "running", "done"]},
    "progress": {"type": "number"}
  }
}`

func TestValidator(t *testing.T) {
	v, err := NewValidator("task.json", []byte(taskSchema))
	require.NoError(t, err)

	t.Run("valid struct", func(t *testing.T) {
		type task struct {
			ID       string  `json:"id"`
			Status   string  `json:"status"`
			Progress float64 `json:"progress"`
		}
		assert.NoError(t, v.Validate(task{ID: "t1", Status: "running", Progress: 0.5}))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := v.ValidateJSON([]byte(`{"id": "t1"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task.json schema validation failed")
		assert.Contains(t, err.Error(), "status")
	})

	t.Run("wrong enum value", func(t *testing.T) {
		err := v.ValidateJSON([]byte(`{"id": "t1", "status": "lost"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "/status")
	})

	t.Run("not json", func(t *testing.T) {
		assert.Error(t, v.ValidateJSON([]byte(`{`)))
	})
}

func TestNewValidatorRejectsBadSchema(t *testing.T) {
	_, err := NewValidator("bad.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
