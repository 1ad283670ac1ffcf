package crack

import (
	"math/big"
	"time"

	"github.com/Sumatoshi-tech/passcrack/pkg/executor"
)

// Result is a value delivered by the completion service: either an [Outcome]
// or the single [EndOfQueue] marker.
type Result interface {
	result()
}

// Outcome is the verdict for one candidate.
type Outcome struct {
	Candidate string
	Match     bool
	// Err is set when the check itself failed; such outcomes never match.
	Err error
}

// EndOfQueue marks the end of the candidate stream. It is submitted once,
// after the last candidate submission returned.
type EndOfQueue struct {
	// Submitted is the number of candidates submitted before the marker.
	Submitted uint64
}

func (Outcome) result()    {}
func (EndOfQueue) result() {}

// State is the orchestrator state.
type State int

const (
	// StateRunning means no terminal state was reached.
	StateRunning State = iota
	// StateHaltedOnHit means a match stopped the run.
	StateHaltedOnHit
	// StateExhausted means every candidate was checked.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHaltedOnHit:
		return "halted_on_hit"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Summary describes a finished run.
type Summary struct {
	State State
	// Probed counts observed outcomes, hits and failed checks included.
	Probed uint64
	// Hits lists matching candidates in the order they were observed.
	Hits []string
	// Failed counts checks that returned an error.
	Failed uint64
	// EstimatedTotal is the announced candidate count, nil if unknown.
	EstimatedTotal *big.Int
	// Lines counts input lines read, hint block included.
	Lines          uint64
	Elapsed        time.Duration
	Executor       executor.Stats
}

// Found reports whether at least one candidate matched.
func (s Summary) Found() bool {
	return len(s.Hits) > 0
}
