package session

import "github.com/devrev/shardrouter/internal/model"

// RequestRecord tracks one request span's write destinations: the set of
// shard hosts written to, and the op-time each write reached. Every host in
// the op-time map is also in the written-to set; the set is the cheap
// "did we write here" test, the map carries the confirmation values.
type RequestRecord struct {
	hostsWritten map[string]struct{}
	hostOpTimes  model.HostOpTimeMap
}

func newRequestRecord() RequestRecord {
	return RequestRecord{
		hostsWritten: make(map[string]struct{}),
		hostOpTimes:  make(model.HostOpTimeMap),
	}
}

func (r *RequestRecord) addHost(host string) {
	r.hostsWritten[host] = struct{}{}
}

func (r *RequestRecord) setOpTime(host string, opTime model.OpTime) {
	r.hostsWritten[host] = struct{}{}
	r.hostOpTimes[host] = opTime
}

func (r *RequestRecord) clear() {
	r.hostsWritten = make(map[string]struct{})
	r.hostOpTimes = make(model.HostOpTimeMap)
}
