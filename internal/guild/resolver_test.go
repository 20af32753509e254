package guild

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() Snapshot {
	return Snapshot{
		ID:   "100",
		Name: "Test Guild",
		Roles: []Role{
			{ID: "10", Name: "@everyone"},
			{ID: "11", Name: "Judge"},
			{ID: "12", Name: "Tournament Admin"},
		},
		Channels: []Channel{
			{ID: "20", Name: "general", Type: ChannelTypeText},
			{ID: "21", Name: "match-pairings", Type: ChannelTypeText},
			{ID: "22", Name: "Matches", Type: ChannelTypeCategory},
			{ID: "23", Name: "Voice", Type: ChannelTypeVoice, ParentID: "22"},
		},
	}
}

func TestFindDefaultRole(t *testing.T) {
	snap := testSnapshot()

	id, ok := FindDefaultRole(snap, DefaultJudgeRoleName)
	require.True(t, ok)
	assert.Equal(t, "11", id)

	id, ok = FindDefaultRole(snap, DefaultTournAdminRoleName)
	require.True(t, ok)
	assert.Equal(t, "12", id)

	_, ok = FindDefaultRole(snap, "judge")
	assert.False(t, ok, "names match exactly")
}

func TestFindDefaultRolePicksLowestID(t *testing.T) {
	snap := Snapshot{Roles: []Role{
		{ID: "900000000000000002", Name: "Judge"},
		{ID: "99", Name: "Judge"},
		{ID: "100000000000000001", Name: "Judge"},
	}}

	id, ok := FindDefaultRole(snap, "Judge")
	require.True(t, ok)
	assert.Equal(t, "99", id)

	// Reordering the snapshot must not change the choice.
	snap.Roles[0], snap.Roles[2] = snap.Roles[2], snap.Roles[0]
	id, _ = FindDefaultRole(snap, "Judge")
	assert.Equal(t, "99", id)
}

func TestFindDefaultTextChannelIgnoresOtherTypes(t *testing.T) {
	snap := Snapshot{Channels: []Channel{
		{ID: "5", Name: "match-pairings", Type: ChannelTypeVoice},
		{ID: "6", Name: "match-pairings", Type: ChannelTypeCategory},
	}}
	_, ok := FindDefaultTextChannel(snap, DefaultPairingsChannelName)
	assert.False(t, ok)

	snap.Channels = append(snap.Channels, Channel{ID: "7", Name: "match-pairings", Type: ChannelTypeText})
	id, ok := FindDefaultTextChannel(snap, DefaultPairingsChannelName)
	require.True(t, ok)
	assert.Equal(t, "7", id)
}

func TestFindDefaultCategory(t *testing.T) {
	snap := testSnapshot()
	id, ok := FindDefaultCategory(snap, DefaultMatchesCategoryName)
	require.True(t, ok)
	assert.Equal(t, "22", id)

	snap.Channels = append(snap.Channels, Channel{ID: "3", Name: "Matches", Type: ChannelTypeCategory})
	id, _ = FindDefaultCategory(snap, DefaultMatchesCategoryName)
	assert.Equal(t, "3", id)

	_, ok = FindDefaultCategory(Snapshot{}, DefaultMatchesCategoryName)
	assert.False(t, ok)
}

func TestLessIDFallsBackToStringOrder(t *testing.T) {
	assert.True(t, lessID("2", "10"))
	assert.True(t, lessID("abc", "abd"))
	assert.False(t, lessID("b", "a"))
}

func TestNamesWithDefaults(t *testing.T) {
	names := Names{JudgeRole: "Referee"}.WithDefaults()
	assert.Equal(t, "Referee", names.JudgeRole)
	assert.Equal(t, DefaultTournAdminRoleName, names.TournAdminRole)
	assert.Equal(t, DefaultPairingsChannelName, names.PairingsChannel)
	assert.Equal(t, DefaultMatchesCategoryName, names.MatchesCategory)
}

func TestSnapshotFromDiscord(t *testing.T) {
	g := &discordgo.Guild{
		ID:   "1",
		Name: "Cards",
		Roles: []*discordgo.Role{
			{ID: "2", Name: "Judge"},
			nil,
		},
		Channels: []*discordgo.Channel{
			{ID: "3", Name: "Matches", Type: discordgo.ChannelTypeGuildCategory},
			{ID: "4", Name: "match-pairings", Type: discordgo.ChannelTypeGuildText, ParentID: "3"},
			{ID: "5", Name: "Lobby", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "6", Name: "news", Type: discordgo.ChannelTypeGuildNews},
		},
	}

	snap := SnapshotFromDiscord(g)
	assert.Equal(t, "1", snap.ID)
	assert.Equal(t, []Role{{ID: "2", Name: "Judge"}}, snap.Roles)
	require.Len(t, snap.Channels, 4)
	assert.Equal(t, ChannelTypeCategory, snap.Channels[0].Type)
	assert.Equal(t, Channel{ID: "4", Name: "match-pairings", Type: ChannelTypeText, ParentID: "3"}, snap.Channels[1])
	assert.Equal(t, ChannelTypeVoice, snap.Channels[2].Type)
	assert.Equal(t, ChannelTypeOther, snap.Channels[3].Type)

	assert.True(t, snap.HasRole("2"))
	assert.False(t, snap.HasRole("3"))
	assert.True(t, snap.HasChannel("3"))
	assert.False(t, snap.HasChannel("2"))
}
