package conversation

import "errors"

// ErrProtocolViolation marks resume operations that do not match the pending
// call state: answering when no questions are pending, deciding on a template
// that was never proposed, or addressing a stale call identifier. These are
// programming errors on the caller's side and leave the transcript untouched.
var ErrProtocolViolation = errors.New("conversation protocol violation")

// ErrTextRetriesExceeded means the agent kept producing free text without a
// structured action past the corrective-retry ceiling. The protocol assumes
// the agent always picks one of the three actions; persistent refusal is a
// hard failure, not a loop.
var ErrTextRetriesExceeded = errors.New("agent never produced a structured action within the retry ceiling")
