package entity

// Permissions are explicit grants for restricted roles. Admins ignore them.
type Permissions struct {
	Create bool `json:"create" mapstructure:"create"`
	Edit   bool `json:"edit" mapstructure:"edit"`
	Delete bool `json:"delete" mapstructure:"delete"`
}

// Member is a person acting on the shared task list.
type Member struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	FamilyID    string      `json:"family_id"`
	Permissions Permissions `json:"permissions"`
}

// IsAdmin reports whether the member holds the privileged role.
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// IsRestricted reports whether completions by this member need approval.
func (m *Member) IsRestricted() bool {
	return m.Role == RoleDependent
}

// BelongsTo reports whether the member is part of the given family.
// A nil family (personal scope) matches every member.
func (m *Member) BelongsTo(familyID *string) bool {
	if familyID == nil || *familyID == "" {
		return true
	}
	return m.FamilyID == *familyID
}
