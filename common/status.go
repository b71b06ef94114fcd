package common

//go:generate enumer -json -sql -type Status -trimprefix Status

// Status is the lifecycle state of an ingestion run.
// PENDING is set at dispatch time; the background task moves it to
// COMPLETED or FAILED exactly once. There is no backward transition.
type Status int

const (
	StatusPENDING Status = iota
	StatusCOMPLETED
	StatusFAILED
)

// Terminal returns true when the status cannot change anymore
func (s Status) Terminal() bool {
	return s == StatusCOMPLETED || s == StatusFAILED
}
