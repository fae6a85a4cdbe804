package mqtt

import "fmt"

// TopicRoot is the first level of every topic the worker publishes.
const TopicRoot = "nebula"

// Topics builds the topic names of one site.
//
// Playout topics are scoped per channel:
//
//	topics := mqtt.Topics{Site: "nebula"}
//	topics.PlayoutStatus(1)
//	// Returns: "nebula/nebula/playout/1/status"
type Topics struct {
	Site string
}

func (t Topics) prefix() string {
	return fmt.Sprintf("%s/%s", TopicRoot, t.Site)
}

// PlayoutStatus returns the retained status snapshot topic of a channel.
//
// Example: nebula/<site>/playout/1/status
func (t Topics) PlayoutStatus(channelID int) string {
	return t.Playout(channelID, "status")
}

// PlayoutAsRun returns the topic carrying advance events of a channel.
//
// Example: nebula/<site>/playout/1/asrun
func (t Topics) PlayoutAsRun(channelID int) string {
	return t.Playout(channelID, "asrun")
}

// PlayoutHealth returns the periodic health topic of a channel.
//
// Example: nebula/<site>/playout/1/health
func (t Topics) PlayoutHealth(channelID int) string {
	return t.Playout(channelID, "health")
}

// PlayoutCommand returns the topic the worker accepts control commands on.
//
// Example: nebula/<site>/playout/1/command
func (t Topics) PlayoutCommand(channelID int) string {
	return t.Playout(channelID, "command")
}

// Playout returns an arbitrary channel-scoped topic, e.g. one a plugin
// publishes on.
//
// Example: nebula/<site>/playout/1/nowplaying
func (t Topics) Playout(channelID int, name string) string {
	return fmt.Sprintf("%s/playout/%d/%s", t.prefix(), channelID, name)
}

// SystemStatus returns the worker presence topic (LWT, online/offline).
//
// Example: nebula/<site>/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllPlayoutCommands returns a pattern matching the command topic of every
// channel.
//
// Pattern: nebula/<site>/playout/+/command
func (t Topics) AllPlayoutCommands() string {
	return t.prefix() + "/playout/+/command"
}

// AllPlayout returns a pattern matching every playout topic of the site.
//
// Pattern: nebula/<site>/playout/#
func (t Topics) AllPlayout() string {
	return t.prefix() + "/playout/#"
}
