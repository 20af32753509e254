package guild

import "github.com/bwmarrin/discordgo"

// ChannelType classifies a guild channel
type ChannelType int

const (
	ChannelTypeOther ChannelType = iota
	ChannelTypeText
	ChannelTypeVoice
	ChannelTypeCategory
)

func (t ChannelType) String() string {
	switch t {
	case ChannelTypeText:
		return "text"
	case ChannelTypeVoice:
		return "voice"
	case ChannelTypeCategory:
		return "category"
	default:
		return "other"
	}
}

// Role is a guild role as seen in a snapshot
type Role struct {
	ID   string
	Name string
}

// Channel is a guild channel or category as seen in a snapshot
type Channel struct {
	ID       string
	Name     string
	Type     ChannelType
	ParentID string
}

// Snapshot is the live structure of a guild at one point in time
type Snapshot struct {
	ID       string
	Name     string
	Roles    []Role
	Channels []Channel
}

// HasRole reports whether a role with the given ID exists
func (s Snapshot) HasRole(id string) bool {
	for _, r := range s.Roles {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasChannel reports whether a channel or category with the given ID exists
func (s Snapshot) HasChannel(id string) bool {
	_, ok := s.Channel(id)
	return ok
}

// Channel looks up a channel by ID
func (s Snapshot) Channel(id string) (Channel, bool) {
	for _, c := range s.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return Channel{}, false
}

// SnapshotFromDiscord converts a cached discordgo guild into a Snapshot
func SnapshotFromDiscord(g *discordgo.Guild) Snapshot {
	snap := Snapshot{
		ID:       g.ID,
		Name:     g.Name,
		Roles:    make([]Role, 0, len(g.Roles)),
		Channels: make([]Channel, 0, len(g.Channels)),
	}
	for _, r := range g.Roles {
		if r == nil {
			continue
		}
		snap.Roles = append(snap.Roles, Role{ID: r.ID, Name: r.Name})
	}
	for _, c := range g.Channels {
		if c == nil {
			continue
		}
		snap.Channels = append(snap.Channels, Channel{
			ID:       c.ID,
			Name:     c.Name,
			Type:     channelTypeFromDiscord(c.Type),
			ParentID: c.ParentID,
		})
	}
	return snap
}

func channelTypeFromDiscord(t discordgo.ChannelType) ChannelType {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return ChannelTypeText
	case discordgo.ChannelTypeGuildVoice:
		return ChannelTypeVoice
	case discordgo.ChannelTypeGuildCategory:
		return ChannelTypeCategory
	default:
		return ChannelTypeOther
	}
}
