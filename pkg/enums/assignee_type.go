package enums

import "fmt"

// AssigneeType discriminates the person/crew variant on an assignment.
type AssigneeType string

const (
	AssigneeTypePerson AssigneeType = "person"
	AssigneeTypeCrew   AssigneeType = "crew"
)

// String implements fmt.Stringer.
func (t AssigneeType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t AssigneeType) IsValid() bool {
	return t == AssigneeTypePerson || t == AssigneeTypeCrew
}

// ParseAssigneeType converts raw input into an AssigneeType.
func ParseAssigneeType(value string) (AssigneeType, error) {
	switch value {
	case string(AssigneeTypePerson):
		return AssigneeTypePerson, nil
	case string(AssigneeTypeCrew):
		return AssigneeTypeCrew, nil
	default:
		return "", fmt.Errorf("invalid assignee type %q", value)
	}
}
