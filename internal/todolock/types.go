package todolock

// Lock is an advisory claim on one todo within a collection.
type Lock struct {
	CollectionKey string
	TodoID        string
	Holder        string // display name of the holder
}
