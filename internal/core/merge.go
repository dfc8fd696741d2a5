package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labstock/pkg/domain"
)

// MergeMode selects how an upload is applied to the live table.
type MergeMode string

const (
	// MergeOverwrite replaces the whole table with the uploaded rows.
	MergeOverwrite MergeMode = "overwrite"
	// MergeAppend inserts every uploaded row as a new record.
	MergeAppend MergeMode = "append"
	// MergeUpsert reconciles uploaded rows against existing ones by key.
	MergeUpsert MergeMode = "upsert"
)

// ParseMergeMode validates a merge mode string.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(strings.ToLower(strings.TrimSpace(s))) {
	case MergeOverwrite:
		return MergeOverwrite, nil
	case MergeAppend:
		return MergeAppend, nil
	case MergeUpsert, "":
		return MergeUpsert, nil
	default:
		return "", fmt.Errorf("unknown merge mode %q", s)
	}
}

// ConflictPolicy decides which side wins when an uploaded row matches an
// existing one.
type ConflictPolicy string

const (
	// PreferUploaded overwrites any field where the uploaded value is
	// non-empty and differs from the existing one.
	PreferUploaded ConflictPolicy = "prefer_uploaded"
	// PreferExisting only fills fields the existing record left empty.
	PreferExisting ConflictPolicy = "prefer_existing"
)

// ParseConflictPolicy validates a conflict policy string.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PreferUploaded, "uploaded", "":
		return PreferUploaded, nil
	case PreferExisting, "existing":
		return PreferExisting, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// DefaultMergeKeys is the composite key used when the caller picks none.
var DefaultMergeKeys = []string{"name", "cas"}

// MergeOptions configures upload reconciliation.
type MergeOptions struct {
	// Keys are the columns forming the composite match key. Matching is
	// case-insensitive on trimmed values. Empty means DefaultMergeKeys.
	Keys     []string
	Mode     MergeMode
	Conflict ConflictPolicy
}

func (o MergeOptions) normalize() (MergeOptions, error) {
	if o.Mode == "" {
		o.Mode = MergeUpsert
	}
	if o.Conflict == "" {
		o.Conflict = PreferUploaded
	}
	if len(o.Keys) == 0 {
		o.Keys = append([]string(nil), DefaultMergeKeys...)
	}
	valid := make(map[string]bool, len(domain.MergeFields))
	for _, f := range domain.MergeFields {
		valid[f] = true
	}
	for i, k := range o.Keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if !valid[k] {
			return o, fmt.Errorf("invalid merge key %q", o.Keys[i])
		}
		o.Keys[i] = k
	}
	return o, nil
}

// MergeReport summarizes what an applied upload did.
type MergeReport struct {
	Mode      MergeMode         `json:"mode"`
	Keys      []string          `json:"keys"`
	Inserted  int               `json:"inserted"`
	Updated   int               `json:"updated"`
	Unchanged int               `json:"unchanged"`
	Total     int               `json:"total"`
	Issues    []domain.RowIssue `json:"issues,omitempty"`
}

// matchKey builds the composite key for a record: key column values trimmed,
// lowercased, and joined with an unprintable separator.
func matchKey(r domain.Record, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strings.ToLower(strings.TrimSpace(r.Field(k)))
	}
	return strings.Join(parts, "\x1f")
}

// mergeFields applies the conflict policy field-by-field, returning whether
// anything changed.
func mergeFields(existing *domain.Record, uploaded domain.Record, policy ConflictPolicy) bool {
	changed := false
	for _, f := range domain.MergeFields {
		if uploaded.FieldEmpty(f) {
			continue
		}
		switch policy {
		case PreferUploaded:
			if existing.Field(f) != uploaded.Field(f) {
				existing.SetField(f, uploaded.Field(f))
				changed = true
			}
		case PreferExisting:
			if existing.FieldEmpty(f) {
				existing.SetField(f, uploaded.Field(f))
				changed = true
			}
		}
	}
	return changed
}

// MergeUpload applies uploaded rows to the live table according to opts. In
// upsert mode each uploaded row is matched against the first existing record
// sharing its composite key; matched rows are merged field-by-field under the
// conflict policy and unmatched rows are always inserted, never dropped.
func (s *Service) MergeUpload(ctx context.Context, uploaded []domain.Record, opts MergeOptions) (report MergeReport, err error) {
	defer func(start time.Time) { s.observe("merge_upload", start, err) }(time.Now())

	opts, err = opts.normalize()
	if err != nil {
		return MergeReport{}, err
	}
	report = MergeReport{Mode: opts.Mode, Keys: opts.Keys, Total: len(uploaded)}

	// Uploaded files never carry authoritative row IDs.
	rows := make([]domain.Record, len(uploaded))
	for i, r := range uploaded {
		r.ID = ""
		rows[i] = domain.Normalize(r)
	}

	switch opts.Mode {
	case MergeOverwrite:
		if err = s.ReplaceAll(ctx, rows); err != nil {
			return MergeReport{}, err
		}
		report.Inserted = len(rows)
		return report, nil

	case MergeAppend:
		err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, r := range rows {
				if _, txErr := tx.CreateRecord(r); txErr != nil {
					return txErr
				}
			}
			return nil
		})
		if err != nil {
			return MergeReport{}, err
		}
		report.Inserted = len(rows)
		return report, nil
	}

	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		existing := tx.Snapshot().ListRecords()
		index := make(map[string]string, len(existing)) // key -> first record ID
		for _, r := range existing {
			k := matchKey(r, opts.Keys)
			if _, ok := index[k]; !ok {
				index[k] = r.ID
			}
		}
		for _, row := range rows {
			id, ok := index[matchKey(row, opts.Keys)]
			if !ok {
				created, txErr := tx.CreateRecord(row)
				if txErr != nil {
					return txErr
				}
				index[matchKey(created, opts.Keys)] = created.ID
				report.Inserted++
				continue
			}
			changed := false
			if _, txErr := tx.UpdateRecord(id, func(r *domain.Record) error {
				changed = mergeFields(r, row, opts.Conflict)
				return nil
			}); txErr != nil {
				return txErr
			}
			if changed {
				report.Updated++
			} else {
				report.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return MergeReport{}, err
	}
	return report, nil
}
