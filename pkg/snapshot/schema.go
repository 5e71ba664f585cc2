package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/grovetools/livesync/schema"
	"github.com/invopop/jsonschema"
)

const (
	kindDashboard    = "dashboard"
	kindConversation = "conversation"
)

var kinds = map[string]func() interface{}{
	kindDashboard:    func() interface{} { return &Dashboard{} },
	kindConversation: func() interface{} { return &ConversationMessage{} },
}

var (
	validatorsMu sync.Mutex
	validators   = make(map[string]*schema.Validator)
)

// Kinds lists the snapshot kinds a schema can be generated for.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GenerateSchema reflects the JSON Schema for a snapshot kind.
func GenerateSchema(kind string) ([]byte, error) {
	newValue, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown snapshot kind %q", kind)
	}

	r := &jsonschema.Reflector{
		// The server may add fields; only the ones we read are constrained.
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}
	s := r.Reflect(newValue())
	s.Title = fmt.Sprintf("livesync %s snapshot", kind)
	if kind == kindDashboard {
		s.Description = fmt.Sprintf("Dashboard snapshot, schema version %d.", Version)
	}

	return json.MarshalIndent(s, "", "  ")
}

func validatorFor(kind string) (*schema.Validator, error) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()

	if v, ok := validators[kind]; ok {
		return v, nil
	}
	data, err := GenerateSchema(kind)
	if err != nil {
		return nil, err
	}
	v, err := schema.NewValidator(kind+".json", data)
	if err != nil {
		return nil, err
	}
	validators[kind] = v
	return v, nil
}

func validate(kind string, data interface{}) error {
	v, err := validatorFor(kind)
	if err != nil {
		return err
	}
	return v.Validate(data)
}
