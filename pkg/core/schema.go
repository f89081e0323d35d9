package core

// SchemaStatus is the lifecycle state of an analysis node's query schema.
type SchemaStatus string

// Schema statuses.
//
// A schema starts idle, moves to fetching while a fetch is in flight and
// settles in fetched or failed. Unfetchable schemas can never be fetched,
// typically because an upstream source is missing.
const (
	SchemaIdle        SchemaStatus = "idle"
	SchemaFetching    SchemaStatus = "fetching"
	SchemaFetched     SchemaStatus = "fetched"
	SchemaFailed      SchemaStatus = "failed"
	SchemaUnfetchable SchemaStatus = "unfetchable"
)

// Settled reports whether the status is a resting state for a fetch.
func (s SchemaStatus) Settled() bool {
	return s != SchemaFetching
}
