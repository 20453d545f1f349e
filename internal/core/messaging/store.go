package messaging

// Store holds recently published messages per channel until they expire.
type Store interface {
	// Append assigns an ID, sequence number and ingest time to a new message
	// and stores it on channel, creating the channel if needed.
	Append(channel, typ string, payload []byte) Message

	// Since returns the unexpired messages on channel with a sequence greater
	// than cursor, in sequence order. Unknown channels yield nil.
	Since(channel string, cursor int64) []Message

	// Channels returns a summary of every channel that holds messages,
	// sorted by name.
	Channels() []ChannelInfo

	// Prune drops expired messages and empty channels and returns the
	// number of messages removed.
	Prune() int

	// Len returns the number of unexpired messages across all channels,
	// whether or not Prune has run.
	Len() int
}

// Tracker records which client has been handed which message.
type Tracker interface {
	// TryClaim atomically marks messageID as delivered to clientID. It
	// returns true only for the first claim of a pair.
	TryClaim(clientID, messageID string) bool

	// Sweep forgets claims that have outlived their retention.
	Sweep()

	// Len returns the number of claims currently held.
	Len() int
}
