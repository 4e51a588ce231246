package tanktype

import "fmt"

// Priority is the archive-level rank used when archives are merged.
// Higher values shadow lower ones.
type Priority int32

// Priority tiers by on-disk code.
const (
	PriorityFactory   Priority = 0x0000
	PriorityLanguage  Priority = 0x1000
	PriorityExpansion Priority = 0x2000
	PriorityPatch     Priority = 0x3000
	PriorityUser      Priority = 0x4000
)

// ParsePriority maps an on-disk priority code to its tier.
func ParsePriority(code int32) (Priority, error) {
	switch p := Priority(code); p {
	case PriorityFactory, PriorityLanguage, PriorityExpansion, PriorityPatch, PriorityUser:
		return p, nil
	default:
		return 0, fmt.Errorf("%w: 0x%x", ErrUnknownPriority, code)
	}
}

// String returns the tier name.
func (p Priority) String() string {
	switch p {
	case PriorityFactory:
		return "factory"
	case PriorityLanguage:
		return "language"
	case PriorityExpansion:
		return "expansion"
	case PriorityPatch:
		return "patch"
	case PriorityUser:
		return "user"
	default:
		return fmt.Sprintf("unknown(0x%x)", int32(p))
	}
}
