package domain

import (
	"strconv"
	"strings"
)

// cleanText maps absent values to the empty string. The original data files
// were produced by a tool that serialized missing cells as the literal "nan".
func cleanText(s string) string {
	t := strings.TrimSpace(s)
	if strings.EqualFold(t, "nan") {
		return ""
	}
	return t
}

// parseBottles coerces a bottle count to a positive integer, defaulting to 1
// on parse failure or non-positive input.
func parseBottles(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
			n = int(f)
		} else {
			return 1
		}
	}
	if n < 1 {
		return 1
	}
	return n
}

// parseCarbons parses a carbon count, returning nil when absent or invalid.
func parseCarbons(s string) *int {
	t := cleanText(s)
	if t == "" {
		return nil
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		f, ferr := strconv.ParseFloat(t, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

func formatCarbons(c *int) string {
	if c == nil {
		return ""
	}
	return strconv.Itoa(*c)
}

func formatBottles(b int) string {
	if b < 1 {
		b = 1
	}
	return strconv.Itoa(b)
}

// Normalize returns the record with every field coerced to its canonical
// form: trimmed non-null text, positive bottle count, numeric-or-absent
// carbons, canonical physical state. Normalizing an already-normalized record
// yields an identical record.
func Normalize(r Record) Record {
	out := r.Clone()
	out.ID = strings.TrimSpace(r.ID)
	out.Name = cleanText(r.Name)
	out.CAS = cleanText(r.CAS)
	out.Distributor = cleanText(r.Distributor)
	out.ContainerSize = cleanText(r.ContainerSize)
	out.State = ParseState(string(r.State))
	out.Location = cleanText(r.Location)
	if out.Bottles < 1 {
		out.Bottles = 1
	}
	out.StorageConditions = cleanText(r.StorageConditions)
	out.Hazards = cleanText(r.Hazards)
	out.SDSLink = cleanText(r.SDSLink)
	return out
}

// NormalizeAll normalizes every record in the slice.
func NormalizeAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Normalize(r)
	}
	return out
}
