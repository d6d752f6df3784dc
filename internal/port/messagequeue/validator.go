package messagequeue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// payload is a message schema that can check its own field invariants.
type payload interface {
	Check() error
}

// schemas maps a subject suffix to a constructor for its payload.
var schemas = map[string]func() payload{
	SubjectWatchdogCompleted: func() payload { return &WatchdogCompletedPayload{} },
	SubjectWatchdogTrigger:   func() payload { return &WatchdogTriggerPayload{} },
	SubjectMirrorCompleted:   func() payload { return &MirrorCompletedPayload{} },
}

// Validate checks data against the schema of the subject's suffix. Unknown
// fields are rejected so a producer on a newer schema is caught early.
// Subjects without a schema only need to carry valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	newPayload, ok := schemaFor(subject)
	if !ok {
		return nil
	}

	p := newPayload()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if err := p.Check(); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

func schemaFor(subject string) (func() payload, bool) {
	for suffix, fn := range schemas {
		if subject == suffix || strings.HasSuffix(subject, "."+suffix) {
			return fn, true
		}
	}
	return nil, false
}
