package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvents(t *testing.T) {
	input := strings.Join([]string{
		": keepalive",
		"retry: 250",
		"id: 7",
		"event: git-change",
		`data: {"type":"git-change",`,
		`data: "files":2}`,
		"",
		`data: {"type":"message"}`,
		"",
		"event: ignored-without-data",
		"",
		"id: 9",
		"",
		"data:no-space",
		"",
	}, "\n") + "\n"

	var (
		msgs  []Message
		retry time.Duration
		ids   []string
	)
	err := parseEvents(strings.NewReader(input),
		func(m Message) { msgs = append(msgs, m) },
		func(d time.Duration) { retry = d },
		func(id string) { ids = append(ids, id) })

	require.Error(t, err)
	assert.Equal(t, 250*time.Millisecond, retry)
	assert.Equal(t, []string{"7", "9"}, ids)
	require.Len(t, msgs, 3)

	assert.Equal(t, "git-change", msgs[0].Event)
	assert.Equal(t, "7", msgs[0].ID)
	assert.Equal(t, "{\"type\":\"git-change\",\n\"files\":2}", string(msgs[0].Data))

	assert.Equal(t, "", msgs[1].Event)
	assert.Equal(t, `{"type":"message"}`, string(msgs[1].Data))

	assert.Equal(t, "no-space", string(msgs[2].Data))
}

func TestParseEventsIgnoresBadRetry(t *testing.T) {
	called := false
	_ = parseEvents(strings.NewReader("retry: soon\n\n"),
		func(Message) {},
		func(time.Duration) { called = true },
		func(string) {})
	assert.False(t, called)
}

func TestParseEventsClampsRetry(t *testing.T) {
	var got []time.Duration
	_ = parseEvents(strings.NewReader("retry: 0\n\nretry: 20\n\nretry: 2500\n\n"),
		func(Message) {},
		func(d time.Duration) { got = append(got, d) },
		func(string) {})
	assert.Equal(t, []time.Duration{MinRetry, MinRetry, 2500 * time.Millisecond}, got)
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:1/x", wsURL("http://localhost:1/x"))
	assert.Equal(t, "wss://host/x", wsURL("https://host/x"))
	assert.Equal(t, "ws://host/x", wsURL("ws://host/x"))
}
