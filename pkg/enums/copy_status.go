package enums

import "fmt"

// CopyStatus is the circulation state of a physical book copy.
type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "AVAILABLE"
	CopyStatusLoaned    CopyStatus = "LOANED"
	CopyStatusOnHold    CopyStatus = "ON_HOLD"
)

var validCopyStatuses = []CopyStatus{
	CopyStatusAvailable,
	CopyStatusLoaned,
	CopyStatusOnHold,
}

// String implements fmt.Stringer.
func (c CopyStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CopyStatus.
func (c CopyStatus) IsValid() bool {
	for _, candidate := range validCopyStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCopyStatus converts raw input into a CopyStatus.
func ParseCopyStatus(value string) (CopyStatus, error) {
	for _, candidate := range validCopyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid copy status %q", value)
}
