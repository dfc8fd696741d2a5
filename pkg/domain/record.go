// Package domain defines the chemical inventory record, its normalization
// rules, and the persistence interfaces implemented by the storage backends.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// PhysicalState enumerates the recognised physical states of a chemical.
type PhysicalState string

// Canonical physical states. Anything unrecognised normalizes to StateUnknown.
const (
	StateSolid   PhysicalState = "Solid"
	StateLiquid  PhysicalState = "Liquid"
	StateGas     PhysicalState = "Gas"
	StateUnknown PhysicalState = "Unknown"
)

// ParseState canonicalizes a free-form state string. Blank and unrecognised
// values map to StateUnknown.
func ParseState(s string) PhysicalState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solid":
		return StateSolid
	case "liquid":
		return StateLiquid
	case "gas":
		return StateGas
	default:
		return StateUnknown
	}
}

// casPattern matches a CAS registry number: 2-7 digits, 2 digits, check digit.
var casPattern = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)

// ValidCAS reports whether s is a well-formed CAS registry number.
func ValidCAS(s string) bool {
	return casPattern.MatchString(strings.TrimSpace(s))
}

// Record is a single chemical inventory row. Text fields never hold a null;
// absent values are the empty string. Carbons is nil when not applicable.
type Record struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	CAS               string        `json:"cas"`
	Carbons           *int          `json:"carbons,omitempty"`
	Distributor       string        `json:"distributor"`
	ContainerSize     string        `json:"container_size"`
	State             PhysicalState `json:"state"`
	Location          string        `json:"location"`
	Bottles           int           `json:"bottles"`
	StorageConditions string        `json:"storage_conditions"`
	Hazards           string        `json:"hazards"`
	SDSLink           string        `json:"sds_link"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Columns lists the CSV column names in storage order.
var Columns = []string{
	"id", "name", "cas", "carbons", "distributor", "container_size",
	"state", "location", "bottles", "storage_conditions", "hazards", "sds_link",
}

// MergeFields lists the field names addressable as merge keys and reconciled
// field-by-field during an upsert. The row identifier is excluded: uploaded
// files never carry authoritative IDs.
var MergeFields = []string{
	"name", "cas", "carbons", "distributor", "container_size",
	"state", "location", "bottles", "storage_conditions", "hazards", "sds_link",
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	if r.Carbons != nil {
		v := *r.Carbons
		cp.Carbons = &v
	}
	return cp
}

// Field returns the named field rendered as its CSV string form. Unknown
// names return the empty string.
func (r Record) Field(name string) string {
	switch name {
	case "id":
		return r.ID
	case "name":
		return r.Name
	case "cas":
		return r.CAS
	case "carbons":
		return formatCarbons(r.Carbons)
	case "distributor":
		return r.Distributor
	case "container_size":
		return r.ContainerSize
	case "state":
		return string(r.State)
	case "location":
		return r.Location
	case "bottles":
		return formatBottles(r.Bottles)
	case "storage_conditions":
		return r.StorageConditions
	case "hazards":
		return r.Hazards
	case "sds_link":
		return r.SDSLink
	default:
		return ""
	}
}

// SetField assigns the named field from its CSV string form, applying the
// same coercions as Normalize. Unknown names are ignored.
func (r *Record) SetField(name, value string) {
	switch name {
	case "id":
		r.ID = strings.TrimSpace(value)
	case "name":
		r.Name = cleanText(value)
	case "cas":
		r.CAS = cleanText(value)
	case "carbons":
		r.Carbons = parseCarbons(value)
	case "distributor":
		r.Distributor = cleanText(value)
	case "container_size":
		r.ContainerSize = cleanText(value)
	case "state":
		r.State = ParseState(value)
	case "location":
		r.Location = cleanText(value)
	case "bottles":
		r.Bottles = parseBottles(value)
	case "storage_conditions":
		r.StorageConditions = cleanText(value)
	case "hazards":
		r.Hazards = cleanText(value)
	case "sds_link":
		r.SDSLink = cleanText(value)
	}
}

// FieldEmpty reports whether the named field counts as empty for merge fill
// policy. StateUnknown and nil carbons count as empty.
func (r Record) FieldEmpty(name string) bool {
	switch name {
	case "carbons":
		return r.Carbons == nil
	case "state":
		return r.State == StateUnknown
	case "bottles":
		return r.Bottles <= 0
	default:
		return strings.TrimSpace(r.Field(name)) == ""
	}
}
