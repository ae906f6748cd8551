package types

// Event kinds understood by this client.
const (
	KindProfile   = 0
	KindDeletion  = 5
	KindReaction  = 7
	KindRelayList = 10002
	KindTrack     = 31337
	KindPlaylist  = 31338
)
