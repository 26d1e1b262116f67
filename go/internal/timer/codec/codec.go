package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/mcdev12/synctimer/go/internal/timer"
)

// ErrUnknownCodec is returned by ByName for an unsupported codec name.
var ErrUnknownCodec = errors.New("unknown snapshot codec")

// Codec converts snapshots to and from channel payloads. Absent optional
// fields must survive as the explicit "no value" marker, never as zero.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(snap timer.Snapshot) ([]byte, error)
	Unmarshal(data []byte) (timer.Snapshot, error)
}

// ByName returns the codec registered under name. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSON encodes snapshots as JSON objects with null for absent fields.
type JSON struct{}

func (JSON) Name() string        { return "json" }
func (JSON) ContentType() string { return "application/json" }

func (JSON) Marshal(snap timer.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte) (timer.Snapshot, error) {
	var snap timer.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return timer.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, validate(snap)
}

// CBOR encodes snapshots as CBOR maps keyed like the JSON form, with CBOR
// null for absent fields.
type CBOR struct{}

func (CBOR) Name() string        { return "cbor" }
func (CBOR) ContentType() string { return "application/cbor" }

func (CBOR) Marshal(snap timer.Snapshot) ([]byte, error) {
	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func (CBOR) Unmarshal(data []byte) (timer.Snapshot, error) {
	var snap timer.Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return timer.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, validate(snap)
}

func validate(snap timer.Snapshot) error {
	switch {
	case snap.LastUpdated <= 0:
		return errors.New("decode snapshot: missing lastUpdated")
	case snap.DurationMs <= 0:
		return errors.New("decode snapshot: non-positive durationMs")
	case snap.IsRunning && (snap.StartTime == nil || snap.EndTime == nil):
		return errors.New("decode snapshot: running without start and end time")
	}
	return nil
}
