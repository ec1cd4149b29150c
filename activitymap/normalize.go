// Package activitymap flattens auth activity events into the record shape the
// TaskFlow audit feed ingests.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/taskflowhq/go-auth"
)

// Metadata keys filled from the event when the event metadata lacks them.
const (
	MetadataKeyMethod      = "method"
	MetadataKeyFailureKind = "kind"
	MetadataKeyEmail       = "email"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Record is one audit feed entry.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	Outcome    string         `json:"outcome"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Mapper converts events to records. The zero value maps to channel "auth",
// object type "user" and actor "anonymous" when the event names nobody.
type Mapper struct {
	Channel        string
	ObjectType     string
	AnonymousActor string
	// ObjectID overrides the object id, which defaults to the user id.
	ObjectID func(auth.ActivityEvent) string
	Now      func() time.Time
}

// Normalize maps event with the default Mapper.
func Normalize(event auth.ActivityEvent) Record {
	return Mapper{}.Map(event)
}

// Map converts event. The actor is the user id, then the email as given,
// then the anonymous actor. Event metadata is copied, never shared.
func (m Mapper) Map(event auth.ActivityEvent) Record {
	rec := Record{
		ActorID:    pick(event.UserID, event.Email, m.AnonymousActor, "anonymous"),
		Verb:       string(event.EventType),
		Outcome:    OutcomeOK,
		ObjectType: pick(m.ObjectType, "user"),
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    pick(m.Channel, "auth"),
		OccurredAt: event.OccurredAt,
	}
	if event.Failed() {
		rec.Outcome = OutcomeFailed
	}
	if m.ObjectID != nil {
		rec.ObjectID = strings.TrimSpace(m.ObjectID(event))
	}
	if rec.OccurredAt.IsZero() {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		rec.OccurredAt = now().UTC()
	}

	meta := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		meta[k] = v
	}
	for k, v := range map[string]string{
		MetadataKeyMethod:      strings.TrimSpace(event.Method),
		MetadataKeyFailureKind: string(event.Kind),
		MetadataKeyEmail:       strings.TrimSpace(event.Email),
	} {
		if _, taken := meta[k]; !taken && v != "" {
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		rec.Metadata = meta
	}

	return rec
}

// Args flattens r into key/value pairs for a structured logger.
func (r Record) Args() []any {
	args := []any{"actor_id", r.ActorID, "verb", r.Verb, "outcome", r.Outcome, "channel", r.Channel}
	if r.ObjectID != "" {
		args = append(args, "object_type", r.ObjectType, "object_id", r.ObjectID)
	}
	for _, key := range []string{MetadataKeyMethod, MetadataKeyFailureKind} {
		if v, ok := r.Metadata[key]; ok {
			args = append(args, key, v)
		}
	}
	return args
}

func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
