package schema

import "fmt"

// Change is one emitted contract-change event.
type Change struct {
	Type        ChangeType `json:"change_type"`
	Severity    Severity   `json:"severity"`
	Path        string     `json:"path"`
	OldTypes    []string   `json:"old_types"`
	NewTypes    []string   `json:"new_types"`
	OldNullable bool       `json:"old_nullable"`
	NewNullable bool       `json:"new_nullable"`
	Explanation string     `json:"explanation"`
}

// Compare walks old and new snapshots of the same schema position and
// returns every contract change detected, in encounter order. Object/array
// shape rules take precedence over scalar type rules at the same node.
func Compare(old, new *Node, path string) []Change {
	if old == nil || new == nil {
		return nil
	}

	var changes []Change

	oldPrimary := old.Meta.PrimaryType()
	newPrimary := new.Meta.PrimaryType()

	switch {
	case oldPrimary != "" && newPrimary != "" && oldPrimary != newPrimary:
		changes = append(changes, classifyTypeChange(oldPrimary, newPrimary, path, old, new))
	default:
		if !old.Meta.Nullable && new.Meta.Nullable && newPrimary != "" {
			changes = append(changes, Change{
				Type: FieldBecameNullable, Severity: severityOf[FieldBecameNullable],
				Path: path, OldTypes: old.Meta.TypesSeen, NewTypes: new.Meta.TypesSeen,
				OldNullable: old.Meta.Nullable, NewNullable: new.Meta.Nullable,
				Explanation: fmt.Sprintf("%s can now be null, previously never was", path),
			})
		}
		if oldPrimary == "" && old.Meta.Nullable && newPrimary != "" {
			changes = append(changes, Change{
				Type: NullToTyped, Severity: severityOf[NullToTyped],
				Path: path, OldTypes: old.Meta.TypesSeen, NewTypes: new.Meta.TypesSeen,
				OldNullable: old.Meta.Nullable, NewNullable: new.Meta.Nullable,
				Explanation: fmt.Sprintf("%s was only ever observed as null, now carries a %s", path, newPrimary),
			})
		}
	}

	if old.Children != nil || new.Children != nil {
		for k := range old.Children {
			if _, ok := new.Children[k]; !ok {
				changes = append(changes, Change{
					Type: FieldRemoved, Severity: severityOf[FieldRemoved],
					Path:        childPath(path, k),
					OldTypes:    old.Children[k].Meta.TypesSeen,
					Explanation: fmt.Sprintf("%s is no longer present", childPath(path, k)),
				})
			}
		}
		for k := range new.Children {
			if _, ok := old.Children[k]; !ok {
				changes = append(changes, Change{
					Type: NewField, Severity: severityOf[NewField],
					Path:        childPath(path, k),
					NewTypes:    new.Children[k].Meta.TypesSeen,
					Explanation: fmt.Sprintf("%s is a newly observed field", childPath(path, k)),
				})
			}
		}
		for k, oc := range old.Children {
			if nc, ok := new.Children[k]; ok {
				changes = append(changes, Compare(oc, nc, childPath(path, k))...)
			}
		}
	}

	switch {
	case old.Items != nil && new.Items != nil:
		changes = append(changes, Compare(old.Items, new.Items, path+"[*]")...)
	case old.Items != nil && new.Items == nil:
		changes = append(changes, Change{
			Type: ArrayToNonArray, Severity: severityOf[ArrayToNonArray],
			Path:        path,
			Explanation: fmt.Sprintf("%s is no longer observed as an array", path),
		})
	}

	return changes
}

func classifyTypeChange(oldT, newT, path string, old, new *Node) Change {
	c := Change{
		Path: path, OldTypes: old.Meta.TypesSeen, NewTypes: new.Meta.TypesSeen,
		OldNullable: old.Meta.Nullable, NewNullable: new.Meta.Nullable,
	}
	switch {
	case oldT == "object" && newT != "object":
		c.Type, c.Severity = ObjectToPrimitive, severityOf[ObjectToPrimitive]
		c.Explanation = fmt.Sprintf("%s changed from object to %s", path, newT)
	case oldT == "array" && newT != "array":
		c.Type, c.Severity = ArrayToNonArray, severityOf[ArrayToNonArray]
		c.Explanation = fmt.Sprintf("%s changed from array to %s", path, newT)
	case oldT != "array" && newT == "array":
		c.Type, c.Severity = NonArrayToArray, severityOf[NonArrayToArray]
		c.Explanation = fmt.Sprintf("%s changed from %s to array", path, oldT)
	default:
		c.Type, c.Severity = TypeChanged, severityOf[TypeChanged]
		c.Explanation = fmt.Sprintf("%s changed from %s to %s", path, oldT, newT)
	}
	return c
}

func childPath(path, key string) string {
	return path + "." + key
}
