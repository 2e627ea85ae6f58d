package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

const (
	recordSuffix = ".json"
	tmpSuffix    = ".tmp"
	corruptDir   = "corrupt"
)

// eventRecord is the on-disk shape of one event. Seq preserves append order
// across restarts; the payload is stored raw and rehydrated through the
// event type on load.
type eventRecord struct {
	Seq            uint64          `json:"seq"`
	ID             string          `json:"id"`
	SourceKey      string          `json:"source_key"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	NextEligibleAt *time.Time      `json:"next_eligible_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	TerminalAt     *time.Time      `json:"terminal_at,omitempty"`
}

// EventLog persists one JSON file per event under a directory, writing each
// record to a temp file and renaming it into place so a crash mid-write never
// leaves a torn record. Files that fail to parse on open are moved into a
// corrupt/ subdirectory instead of blocking startup.
type EventLog struct {
	dir string

	mu      sync.Mutex
	events  map[string]core.WebhookEvent
	seqs    map[string]uint64
	order   []string
	nextSeq uint64
}

// Open loads every record below dir, quarantining unreadable files, and
// returns a log ready for appends. The directory is created if missing.
func Open(dir string) (*EventLog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, storeBadInput("filestore: directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeWrapInternal(err, "filestore: create directory", map[string]any{"dir": dir})
	}

	log := &EventLog{
		dir:     dir,
		events:  map[string]core.WebhookEvent{},
		seqs:    map[string]uint64{},
		nextSeq: 1,
	}
	if err := log.load(); err != nil {
		return nil, err
	}
	return log, nil
}

func (l *EventLog) load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return storeWrapInternal(err, "filestore: read directory", map[string]any{"dir": l.dir})
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		path := filepath.Join(l.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return storeWrapInternal(err, "filestore: read record", map[string]any{"path": path})
		}
		record, err := decodeRecord(data)
		if err != nil {
			if quarantineErr := l.quarantine(path); quarantineErr != nil {
				return quarantineErr
			}
			continue
		}
		event, err := recordToEvent(record)
		if err != nil {
			if quarantineErr := l.quarantine(path); quarantineErr != nil {
				return quarantineErr
			}
			continue
		}
		l.events[event.ID] = event
		l.seqs[event.ID] = record.Seq
		if record.Seq >= l.nextSeq {
			l.nextSeq = record.Seq + 1
		}
	}

	l.order = make([]string, 0, len(l.events))
	for id := range l.events {
		l.order = append(l.order, id)
	}
	sort.Slice(l.order, func(i, j int) bool {
		return l.seqs[l.order[i]] < l.seqs[l.order[j]]
	})
	return nil
}

func (l *EventLog) quarantine(path string) error {
	target := filepath.Join(l.dir, corruptDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return storeWrapInternal(err, "filestore: create quarantine directory", map[string]any{"dir": target})
	}
	if err := os.Rename(path, filepath.Join(target, filepath.Base(path))); err != nil {
		return storeWrapInternal(err, "filestore: quarantine record", map[string]any{"path": path})
	}
	return nil
}

func (l *EventLog) Append(
	_ context.Context,
	event core.WebhookEvent,
) (core.WebhookEvent, bool, error) {
	if l == nil {
		return core.WebhookEvent{}, false, storeInternal("filestore: event log is nil", nil)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.SourceKey = strings.TrimSpace(event.SourceKey)
	if event.ID == "" || event.SourceKey == "" {
		return core.WebhookEvent{}, false, storeBadInput("filestore: event id and source key are required", nil)
	}
	if event.Status == "" {
		event.Status = core.EventStatusPending
	}
	if !core.IsValidStatus(event.Status) {
		return core.WebhookEvent{}, false, storeBadInput("filestore: invalid event status", map[string]any{
			"event_id": event.ID,
			"status":   event.Status,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.events[event.ID]; ok {
		return existing.Clone(), true, nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	seq := l.nextSeq
	if err := l.persistLocked(event, seq); err != nil {
		return core.WebhookEvent{}, false, err
	}
	l.nextSeq++
	l.events[event.ID] = event.Clone()
	l.seqs[event.ID] = seq
	l.order = append(l.order, event.ID)
	return event.Clone(), false, nil
}

func (l *EventLog) Update(
	_ context.Context,
	id string,
	mutation core.EventMutation,
) (core.WebhookEvent, error) {
	if l == nil {
		return core.WebhookEvent{}, storeInternal("filestore: event log is nil", nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.WebhookEvent{}, storeBadInput("filestore: event id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.events[id]
	if !ok {
		return core.WebhookEvent{}, storeNotFound("filestore: event not found", map[string]any{
			"event_id": id,
		})
	}
	updated, err := core.ApplyMutation(existing, mutation)
	if err != nil {
		return core.WebhookEvent{}, storeWrapError(
			err,
			goerrors.CategoryConflict,
			"filestore: event mutation rejected",
			http.StatusConflict,
			core.IngestErrorDuplicate,
			map[string]any{"event_id": id},
		)
	}
	if err := l.persistLocked(updated, l.seqs[id]); err != nil {
		return core.WebhookEvent{}, err
	}
	l.events[id] = updated.Clone()
	return updated, nil
}

func (l *EventLog) Get(_ context.Context, id string) (core.WebhookEvent, error) {
	if l == nil {
		return core.WebhookEvent{}, storeInternal("filestore: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[strings.TrimSpace(id)]
	if !ok {
		return core.WebhookEvent{}, storeNotFound("filestore: event not found", map[string]any{
			"event_id": id,
		})
	}
	return event.Clone(), nil
}

func (l *EventLog) ScanNonTerminal(_ context.Context) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, storeInternal("filestore: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.WebhookEvent, 0, len(l.order))
	for _, id := range l.order {
		event := l.events[id]
		if event.Terminal() {
			continue
		}
		out = append(out, event.Clone())
	}
	return out, nil
}

func (l *EventLog) ScanBySource(
	_ context.Context,
	sourceKey string,
	afterCreatedAt time.Time,
) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, storeInternal("filestore: event log is nil", nil)
	}
	sourceKey = strings.TrimSpace(sourceKey)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.WebhookEvent{}
	for _, id := range l.order {
		event := l.events[id]
		if event.SourceKey != sourceKey || event.Terminal() {
			continue
		}
		if !afterCreatedAt.IsZero() && !event.CreatedAt.After(afterCreatedAt) {
			continue
		}
		out = append(out, event.Clone())
	}
	return out, nil
}

func (l *EventLog) ListDead(_ context.Context, limit int) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, storeInternal("filestore: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.WebhookEvent{}
	for i := len(l.order) - 1; i >= 0; i-- {
		event := l.events[l.order[i]]
		if event.Status != core.EventStatusDead {
			continue
		}
		out = append(out, event.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *EventLog) PurgeSucceeded(_ context.Context, olderThan time.Time) (int, error) {
	if l == nil {
		return 0, storeInternal("filestore: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.order[:0]
	purged := 0
	for _, id := range l.order {
		event := l.events[id]
		purgeable := event.Status == core.EventStatusSucceeded &&
			event.TerminalAt != nil &&
			event.TerminalAt.Before(olderThan)
		if !purgeable {
			kept = append(kept, id)
			continue
		}
		if err := os.Remove(l.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			kept = append(kept, id)
			continue
		}
		delete(l.events, id)
		delete(l.seqs, id)
		purged++
	}
	l.order = kept
	return purged, nil
}

func (l *EventLog) persistLocked(event core.WebhookEvent, seq uint64) error {
	record, err := eventToRecord(event, seq)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return storeWrapInternal(err, "filestore: encode record", map[string]any{"event_id": event.ID})
	}
	path := l.recordPath(event.ID)
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return storeWrapInternal(err, "filestore: write record", map[string]any{"path": tmp})
	}
	if err := os.Rename(tmp, path); err != nil {
		return storeWrapInternal(err, "filestore: publish record", map[string]any{"path": path})
	}
	return nil
}

func (l *EventLog) recordPath(id string) string {
	return filepath.Join(l.dir, url.PathEscape(id)+recordSuffix)
}

func decodeRecord(data []byte) (eventRecord, error) {
	var record eventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return eventRecord{}, err
	}
	if strings.TrimSpace(record.ID) == "" || strings.TrimSpace(record.SourceKey) == "" {
		return eventRecord{}, fmt.Errorf("filestore: record missing id or source key")
	}
	if !core.IsValidStatus(record.Status) {
		return eventRecord{}, fmt.Errorf("filestore: record has invalid status %q", record.Status)
	}
	return record, nil
}

func recordToEvent(record eventRecord) (core.WebhookEvent, error) {
	payload, err := core.DecodePayload(core.EventType(record.EventType), record.Payload)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return core.WebhookEvent{
		ID:             record.ID,
		SourceKey:      record.SourceKey,
		Type:           core.EventType(record.EventType),
		Payload:        payload,
		Status:         record.Status,
		Attempts:       record.Attempts,
		NextEligibleAt: record.NextEligibleAt,
		LastError:      record.LastError,
		CreatedAt:      record.CreatedAt,
		LastAttemptAt:  record.LastAttemptAt,
		TerminalAt:     record.TerminalAt,
	}, nil
}

func eventToRecord(event core.WebhookEvent, seq uint64) (eventRecord, error) {
	payload, err := core.EncodePayload(event.Payload)
	if err != nil {
		return eventRecord{}, storeWrapInternal(err, "filestore: encode payload", map[string]any{
			"event_id": event.ID,
		})
	}
	return eventRecord{
		Seq:            seq,
		ID:             event.ID,
		SourceKey:      event.SourceKey,
		EventType:      string(event.Type),
		Payload:        payload,
		Status:         event.Status,
		Attempts:       event.Attempts,
		NextEligibleAt: event.NextEligibleAt,
		LastError:      event.LastError,
		CreatedAt:      event.CreatedAt,
		LastAttemptAt:  event.LastAttemptAt,
		TerminalAt:     event.TerminalAt,
	}, nil
}

var _ core.EventLog = (*EventLog)(nil)
