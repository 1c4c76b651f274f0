package model

import "fmt"

// OpTime is a logical timestamp in a shard's write history: seconds since
// epoch plus a per-second sequence number. OpTimes are totally ordered and
// only ever compared, never rendered as wall-clock time.
type OpTime struct {
	Seconds   uint32 `json:"seconds"`
	Increment uint32 `json:"increment"`
}

// Compare returns -1 if t is before other, 0 if equal, 1 if after.
func (t OpTime) Compare(other OpTime) int {
	if t.Seconds != other.Seconds {
		if t.Seconds < other.Seconds {
			return -1
		}
		return 1
	}
	if t.Increment != other.Increment {
		if t.Increment < other.Increment {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether t is strictly before other.
func (t OpTime) Less(other OpTime) bool {
	return t.Compare(other) < 0
}

// IsZero reports whether t is the zero OpTime.
func (t OpTime) IsZero() bool {
	return t.Seconds == 0 && t.Increment == 0
}

// String returns the "seconds:increment" form used in logs and results.
func (t OpTime) String() string {
	return fmt.Sprintf("%d:%d", t.Seconds, t.Increment)
}

// HostOpTimeMap maps a canonical shard host ("host:port") to the op-time a
// write reached on that shard. Canonicalization is performed by the
// connection layer that supplies the host strings.
type HostOpTimeMap map[string]OpTime
