// Package codec defines the persisted form of ladder state.
//
// Every value is a JSON envelope carrying a schema version. Decoders return
// ErrStorageParse for anything they cannot read so callers can log it and
// fall back to empty state.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/tier"
)

// Schema versions written by this package.
const (
	TierMapVersion   = 2
	SpotlightVersion = 1
	MetaVersion      = 1
)

// legacyTierMapVersion is the bare {"id":"tier"} object written before
// envelopes existed.
const legacyTierMapVersion = 1

type tierMapEnvelope struct {
	Version int                  `json:"version"`
	Tiers   map[string]tier.Tier `json:"tiers"`
}

type spotlightEnvelope struct {
	Version int                    `json:"version"`
	Entries []model.SpotlightEntry `json:"entries"`
}

type metaEnvelope struct {
	Version     int    `json:"version"`
	TeacherName string `json:"teacherName"`
	SubjectName string `json:"subjectName"`
}

// EncodeTierMap serializes a class tier map. None entries are omitted since
// absence already means none.
func EncodeTierMap(tiers map[string]tier.Tier) (string, error) {
	out := make(map[string]tier.Tier, len(tiers))
	for id, t := range tiers {
		if t == tier.None {
			continue
		}
		out[id] = t
	}
	b, err := json.Marshal(tierMapEnvelope{Version: TierMapVersion, Tiers: out})
	if err != nil {
		return "", fmt.Errorf("encode tier map: %w", err)
	}
	return string(b), nil
}

// DecodeTierMap reads a class tier map. An empty string is an empty map.
// Legacy bare objects are migrated; unknown tier names are dropped.
func DecodeTierMap(raw string) (map[string]tier.Tier, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]tier.Tier{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, parseError("tier map", err)
	}

	version, enveloped := versionOf(fields)
	if !enveloped {
		version = legacyTierMapVersion
	}

	var names map[string]string
	switch version {
	case legacyTierMapVersion:
		names = make(map[string]string, len(fields))
		for id, v := range fields {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// legacy maps only ever held strings
				continue
			}
			names[id] = s
		}
	case TierMapVersion:
		var env struct {
			Tiers map[string]string `json:"tiers"`
		}
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, parseError("tier map", err)
		}
		names = env.Tiers
	default:
		return nil, fmt.Errorf("%w: tier map version %d", ErrUnsupportedVersion, version)
	}

	out := make(map[string]tier.Tier, len(names))
	for id, name := range names {
		t, err := tier.Parse(name)
		if err != nil || t == tier.None {
			continue
		}
		out[id] = t
	}
	return out, nil
}

// EncodeSpotlight serializes the spotlight log.
func EncodeSpotlight(entries []model.SpotlightEntry) (string, error) {
	if entries == nil {
		entries = []model.SpotlightEntry{}
	}
	b, err := json.Marshal(spotlightEnvelope{Version: SpotlightVersion, Entries: entries})
	if err != nil {
		return "", fmt.Errorf("encode spotlight log: %w", err)
	}
	return string(b), nil
}

// DecodeSpotlight reads the spotlight log. A bare JSON array is accepted as
// an unversioned log. Entries without a week key, student or section are
// dropped.
func DecodeSpotlight(raw string) ([]model.SpotlightEntry, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var entries []model.SpotlightEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, parseError("spotlight log", err)
		}
	} else {
		var env spotlightEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return nil, parseError("spotlight log", err)
		}
		if env.Version != SpotlightVersion {
			return nil, fmt.Errorf("%w: spotlight log version %d", ErrUnsupportedVersion, env.Version)
		}
		entries = env.Entries
	}

	out := entries[:0]
	for _, e := range entries {
		if e.WeekKey == "" || e.StudentID == "" || e.Section == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// EncodeMeta serializes report metadata.
func EncodeMeta(m model.Meta) (string, error) {
	b, err := json.Marshal(metaEnvelope{
		Version:     MetaVersion,
		TeacherName: m.TeacherName,
		SubjectName: m.SubjectName,
	})
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(b), nil
}

// DecodeMeta reads report metadata. Objects without a version are the
// original unversioned form and carry the same fields.
func DecodeMeta(raw string) (model.Meta, error) {
	if strings.TrimSpace(raw) == "" {
		return model.Meta{}, nil
	}
	var env metaEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return model.Meta{}, parseError("meta", err)
	}
	if env.Version != 0 && env.Version != MetaVersion {
		return model.Meta{}, fmt.Errorf("%w: meta version %d", ErrUnsupportedVersion, env.Version)
	}
	return model.Meta{TeacherName: env.TeacherName, SubjectName: env.SubjectName}, nil
}

// versionOf reports the envelope version when fields carries a numeric
// "version" member.
func versionOf(fields map[string]json.RawMessage) (int, bool) {
	v, ok := fields["version"]
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

func parseError(entity string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageParse, entity, err)
}
