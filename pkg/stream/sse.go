package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/livesync/logging"
	"github.com/sirupsen/logrus"
)

// DefaultRetry is the reconnect delay used until the server sends a retry field.
const DefaultRetry = 3 * time.Second

// MinRetry is the shortest reconnect delay a server's retry field can set.
const MinRetry = 100 * time.Millisecond

// SSETransport implements EventSource semantics: it reconnects after the
// retry delay when the stream ends or the network fails, and resends the
// last event id. A non-200 response, a wrong content type or a 204 ends the
// connection for good.
type SSETransport struct {
	Client *http.Client
	// Retry is the initial reconnect delay. Zero means DefaultRetry.
	Retry time.Duration
	// MaxReconnects bounds consecutive failed reconnects. Zero means no bound.
	MaxReconnects int
	Logger        *logrus.Entry
}

// NewSSETransport creates an SSE transport using a client without timeout.
func NewSSETransport(retry time.Duration, maxReconnects int) *SSETransport {
	return &SSETransport{
		Client:        &http.Client{Timeout: 0},
		Retry:         retry,
		MaxReconnects: maxReconnects,
		Logger:        logging.NewLogger("stream"),
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Run implements Transport.
func (t *SSETransport) Run(ctx context.Context, url string, header http.Header, hooks Hooks) error {
	retry := t.Retry
	if retry <= 0 {
		retry = DefaultRetry
	}
	logger := t.Logger
	if logger == nil {
		logger = logging.NewLogger("stream")
	}
	logger = logger.WithField("url", url)

	lastEventID := ""
	failures := 0
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if hooks.OnReconnect != nil {
				hooks.OnReconnect()
			}
			timer := time.NewTimer(retry)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		opened, err := t.connect(ctx, url, header, &lastEventID, &retry, hooks)
		if ctx.Err() != nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if opened {
			failures = 0
		} else {
			failures++
		}
		if t.MaxReconnects > 0 && failures > t.MaxReconnects {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("gave up after %d reconnect attempts: %w", t.MaxReconnects, err)
		}
		logger.WithError(err).WithField("retry", retry).Debug("Stream ended, reconnecting")
	}
}

// connect runs a single HTTP request. opened reports whether the server
// accepted the stream.
func (t *SSETransport) connect(ctx context.Context, url string, header http.Header, lastEventID *string, retry *time.Duration, hooks Hooks) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, &permanentError{err: fmt.Errorf("failed to create stream request: %w", err)}
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if *lastEventID != "" {
		req.Header.Set("Last-Event-ID", *lastEventID)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return false, &permanentError{err: fmt.Errorf("stream closed by server (204)")}
	}
	if resp.StatusCode != http.StatusOK {
		return false, &permanentError{err: fmt.Errorf("stream returned status %d", resp.StatusCode)}
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return false, &permanentError{err: fmt.Errorf("stream returned content type %q", resp.Header.Get("Content-Type"))}
	}

	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}
	err = parseEvents(resp.Body, func(msg Message) {
		if hooks.OnMessage != nil {
			hooks.OnMessage(msg)
		}
	}, func(d time.Duration) {
		*retry = d
	}, func(id string) {
		*lastEventID = id
	})
	return true, err
}

// parseEvents reads an event stream until EOF. Events are dispatched on a
// blank line; comment lines are skipped.
func parseEvents(r io.Reader, dispatch func(Message), setRetry func(time.Duration), setID func(string)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		eventType string
		eventID   string
		hasID     bool
		data      bytes.Buffer
		hasData   bool
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if hasID {
				setID(eventID)
			}
			if hasData {
				payload := data.Bytes()
				payload = bytes.TrimSuffix(payload, []byte("\n"))
				dispatch(Message{Event: eventType, ID: eventID, Data: append([]byte(nil), payload...)})
			}
			eventType, eventID, hasID, hasData = "", "", false, false
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				eventID = value
				hasID = true
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				setRetry(max(time.Duration(ms)*time.Millisecond, MinRetry))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
