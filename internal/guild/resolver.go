package guild

import "strconv"

// Default names of the guild structures the bot looks for
const (
	DefaultPairingsChannelName = "match-pairings"
	DefaultJudgeRoleName       = "Judge"
	DefaultTournAdminRoleName  = "Tournament Admin"
	DefaultMatchesCategoryName = "Matches"
)

// Names are the structure names used to discover default references
type Names struct {
	PairingsChannel string `yaml:"pairings_channel"`
	JudgeRole       string `yaml:"judge_role"`
	TournAdminRole  string `yaml:"tourn_admin_role"`
	MatchesCategory string `yaml:"matches_category"`
}

// DefaultNames returns the built-in structure names
func DefaultNames() Names {
	return Names{
		PairingsChannel: DefaultPairingsChannelName,
		JudgeRole:       DefaultJudgeRoleName,
		TournAdminRole:  DefaultTournAdminRoleName,
		MatchesCategory: DefaultMatchesCategoryName,
	}
}

// WithDefaults fills any empty name with its built-in value
func (n Names) WithDefaults() Names {
	d := DefaultNames()
	if n.PairingsChannel == "" {
		n.PairingsChannel = d.PairingsChannel
	}
	if n.JudgeRole == "" {
		n.JudgeRole = d.JudgeRole
	}
	if n.TournAdminRole == "" {
		n.TournAdminRole = d.TournAdminRole
	}
	if n.MatchesCategory == "" {
		n.MatchesCategory = d.MatchesCategory
	}
	return n
}

// FindDefaultRole returns the ID of the role named exactly name.
// When several roles share the name the lowest ID wins.
func FindDefaultRole(snap Snapshot, name string) (string, bool) {
	best := ""
	for _, r := range snap.Roles {
		if r.Name == name && (best == "" || lessID(r.ID, best)) {
			best = r.ID
		}
	}
	return best, best != ""
}

// FindDefaultTextChannel returns the ID of the text channel named exactly name
func FindDefaultTextChannel(snap Snapshot, name string) (string, bool) {
	return findChannel(snap, name, ChannelTypeText)
}

// FindDefaultCategory returns the ID of the category named exactly name
func FindDefaultCategory(snap Snapshot, name string) (string, bool) {
	return findChannel(snap, name, ChannelTypeCategory)
}

func findChannel(snap Snapshot, name string, kind ChannelType) (string, bool) {
	best := ""
	for _, c := range snap.Channels {
		if c.Type == kind && c.Name == name && (best == "" || lessID(c.ID, best)) {
			best = c.ID
		}
	}
	return best, best != ""
}

// lessID orders Discord snowflakes numerically, falling back to string order
func lessID(a, b string) bool {
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
