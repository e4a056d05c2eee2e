package quota

import "fmt"

// Status is the administrative enforcement override for an account.
type Status uint8

const (
	// StatusLimited means the window quota is enforced. New accounts start here.
	StatusLimited Status = iota

	// StatusUnlimited exempts the account from every quota check.
	StatusUnlimited
)

func (s Status) String() string {
	switch s {
	case StatusLimited:
		return "limited"
	case StatusUnlimited:
		return "unlimited"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts the wire form ("limited", "unlimited") back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "limited":
		return StatusLimited, nil
	case "unlimited":
		return StatusUnlimited, nil
	default:
		return StatusLimited, fmt.Errorf("unknown status %q", s)
	}
}

// Record is the per-account quota state. The zero value is a valid record for
// an account that has never been observed: window anchored at epoch zero, no
// usage, enforcement on.
//
// WindowStart never decreases. TxCount and Bytes never decrease except when a
// new window is started by Limits.Advance.
type Record struct {
	// WindowStart is the epoch at which the current window began.
	WindowStart uint64 `json:"window_start"`

	// TxCount is the number of transactions admitted since WindowStart.
	TxCount uint32 `json:"tx_count"`

	// Bytes is the cumulative size admitted since WindowStart.
	Bytes uint32 `json:"bytes"`

	// Status is the administrative override flag.
	Status Status `json:"status"`
}
