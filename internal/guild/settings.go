package guild

// Settings is the tournament configuration of one guild.
// Reference fields hold Discord IDs; an empty string means unset.
type Settings struct {
	PairingsChannel string            `json:"pairings_channel,omitempty"`
	JudgeRole       string            `json:"judge_role,omitempty"`
	TournAdminRole  string            `json:"tourn_admin_role,omitempty"`
	MatchesCategory string            `json:"matches_category,omitempty"`
	MakeVC          bool              `json:"make_vc"`
	MakeTC          bool              `json:"make_tc"`
	TournSettings   map[string]string `json:"tourn_settings"`
}

// NewSettings returns settings with no references and default toggles
func NewSettings() Settings {
	return Settings{
		MakeVC:        true,
		MakeTC:        false,
		TournSettings: make(map[string]string),
	}
}

// SettingsFromSnapshot builds fresh settings, discovering references by name
func SettingsFromSnapshot(snap Snapshot, names Names) Settings {
	s := NewSettings()
	s.JudgeRole, _ = FindDefaultRole(snap, names.JudgeRole)
	s.TournAdminRole, _ = FindDefaultRole(snap, names.TournAdminRole)
	s.PairingsChannel, _ = FindDefaultTextChannel(snap, names.PairingsChannel)
	s.MatchesCategory, _ = FindDefaultCategory(snap, names.MatchesCategory)
	return s
}

// Heal drops references that no longer exist in snap and fills unset
// references from the defaults found in snap. A reference that is still
// valid is never replaced. A dropped reference is rediscovered in the
// same pass, so healing twice with one snapshot equals healing once.
// Heal reports whether anything changed.
func (s *Settings) Heal(snap Snapshot, names Names) bool {
	changed := false

	heal := func(field *string, exists func(string) bool, find func() (string, bool)) {
		old := *field
		if old != "" && exists(old) {
			return
		}
		id, _ := find()
		if id != old {
			*field = id
			changed = true
		}
	}

	heal(&s.JudgeRole, snap.HasRole, func() (string, bool) {
		return FindDefaultRole(snap, names.JudgeRole)
	})
	heal(&s.TournAdminRole, snap.HasRole, func() (string, bool) {
		return FindDefaultRole(snap, names.TournAdminRole)
	})
	heal(&s.PairingsChannel, snap.HasChannel, func() (string, bool) {
		return FindDefaultTextChannel(snap, names.PairingsChannel)
	})
	heal(&s.MatchesCategory, snap.HasChannel, func() (string, bool) {
		return FindDefaultCategory(snap, names.MatchesCategory)
	})

	return changed
}

// IsConfigured reports whether all four references are set
func (s Settings) IsConfigured() bool {
	return s.PairingsChannel != "" &&
		s.JudgeRole != "" &&
		s.TournAdminRole != "" &&
		s.MatchesCategory != ""
}

// Missing lists the names of unset references
func (s Settings) Missing() []string {
	var missing []string
	if s.PairingsChannel == "" {
		missing = append(missing, "pairings channel")
	}
	if s.JudgeRole == "" {
		missing = append(missing, "judge role")
	}
	if s.TournAdminRole == "" {
		missing = append(missing, "tournament admin role")
	}
	if s.MatchesCategory == "" {
		missing = append(missing, "matches category")
	}
	return missing
}

// Clone returns a deep copy
func (s Settings) Clone() Settings {
	c := s
	c.TournSettings = make(map[string]string, len(s.TournSettings))
	for k, v := range s.TournSettings {
		c.TournSettings[k] = v
	}
	return c
}
