package schema

// Severity classifies how disruptive a contract change is to an existing
// client.
type Severity string

const (
	SeverityBreaking Severity = "BREAKING"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// ChangeType names the kind of structural transition a Change describes.
type ChangeType string

const (
	FieldRemoved        ChangeType = "field_removed"
	ObjectToPrimitive   ChangeType = "object_to_primitive"
	ArrayToNonArray     ChangeType = "array_to_non_array"
	NonArrayToArray     ChangeType = "non_array_to_array"
	TypeChanged         ChangeType = "type_changed"
	NullToTyped         ChangeType = "null_to_typed"
	NewField            ChangeType = "new_field"
	FieldBecameNullable ChangeType = "field_became_nullable"
)

// severityOf is the normative change_type → severity table (§4.5.3).
var severityOf = map[ChangeType]Severity{
	FieldRemoved:        SeverityBreaking,
	ObjectToPrimitive:   SeverityBreaking,
	ArrayToNonArray:     SeverityBreaking,
	NonArrayToArray:     SeverityBreaking,
	TypeChanged:         SeverityWarning,
	NullToTyped:         SeverityInfo,
	NewField:            SeverityInfo,
	FieldBecameNullable: SeverityInfo,
}

// remediation is a short human-readable suggestion per change type, used by
// the narrative reporter.
var remediation = map[ChangeType]string{
	FieldRemoved:        "update consumers to stop depending on this field; treat its absence as expected",
	ObjectToPrimitive:   "consumers destructuring this field as an object will break; add a type guard",
	ArrayToNonArray:     "consumers iterating this field will break; add a type guard before iterating",
	NonArrayToArray:     "consumers reading this field as a scalar will break; expect an array now",
	TypeChanged:         "loosen strict type assertions on this field or coerce before use",
	NullToTyped:         "no action required; the field now carries a concrete value where it used to be null",
	NewField:            "optional: consumers may start reading this newly observed field",
	FieldBecameNullable: "defend against null when reading this field going forward",
}
