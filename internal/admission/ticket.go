package admission

import "fmt"

// Phase is the lifecycle state of one transaction's admission.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseValidated
	PhasePrepared
	PhaseCommitted
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseValidated:
		return "validated"
	case PhasePrepared:
		return "prepared"
	case PhaseCommitted:
		return "committed"
	case PhaseRejected:
		return "rejected"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Ticket carries one transaction through Validate, Prepare and Commit. It is
// handed forward by ownership transfer between the phases and is not safe for
// concurrent use; the host runs all phases of one transaction in a single
// execution context.
type Ticket struct {
	phase   Phase
	account string
	size    uint32
}

// Phase returns the ticket's current lifecycle state.
func (t *Ticket) Phase() Phase { return t.phase }

// Account returns the resolved account, empty for the anonymous path.
func (t *Ticket) Account() string { return t.account }

// Anonymous reports whether the ticket carries no identified account.
// Anonymous tickets bypass the quota check and commit nothing.
func (t *Ticket) Anonymous() bool { return t.account == "" }

// Size returns the size observed at validation time. Commit may charge a
// different, remeasured size.
func (t *Ticket) Size() uint32 { return t.size }
