package core

import (
	"fmt"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/searchktools/poolserver/core/observability"
	"github.com/searchktools/poolserver/core/pools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// serverStats holds the only counters workers share; all of them atomic
type serverStats struct {
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	responses atomic.Uint64
	status    [6]atomic.Uint64 // indexed by status class, 1xx..5xx

	malformed        atomic.Uint64
	notFound         atomic.Uint64
	methodNotAllowed atomic.Uint64
	handlerFaults    atomic.Uint64
	silentCloses     atomic.Uint64
	writeErrors      atomic.Uint64
}

func (s *serverStats) recordResponse(status int) {
	s.responses.Add(1)
	if class := status / 100; class >= 1 && class <= 5 {
		s.status[class].Add(1)
	}
}

// Stats is a snapshot of server counters
type Stats struct {
	State string `json:"state"`

	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Responses uint64 `json:"responses"`

	Status1xx uint64 `json:"status_1xx"`
	Status2xx uint64 `json:"status_2xx"`
	Status3xx uint64 `json:"status_3xx"`
	Status4xx uint64 `json:"status_4xx"`
	Status5xx uint64 `json:"status_5xx"`

	Malformed        uint64 `json:"malformed"`
	NotFound         uint64 `json:"not_found"`
	MethodNotAllowed uint64 `json:"method_not_allowed"`
	HandlerFaults    uint64 `json:"handler_faults"`
	SilentCloses     uint64 `json:"silent_closes"`
	WriteErrors      uint64 `json:"write_errors"`

	Workers []WorkerStats              `json:"workers"`
	Routes  []observability.RouteStats `json:"routes"`
	Bufio   pools.BufioStats           `json:"bufio"`
}

// WorkerStats describes one worker
type WorkerStats struct {
	ID          int    `json:"id"`
	Connections uint64 `json:"connections"`
	Busy        bool   `json:"busy"`
}

func (s *serverStats) snapshot() Stats {
	return Stats{
		Accepted:         s.accepted.Load(),
		Rejected:         s.rejected.Load(),
		Responses:        s.responses.Load(),
		Status1xx:        s.status[1].Load(),
		Status2xx:        s.status[2].Load(),
		Status3xx:        s.status[3].Load(),
		Status4xx:        s.status[4].Load(),
		Status5xx:        s.status[5].Load(),
		Malformed:        s.malformed.Load(),
		NotFound:         s.notFound.Load(),
		MethodNotAllowed: s.methodNotAllowed.Load(),
		HandlerFaults:    s.handlerFaults.Load(),
		SilentCloses:     s.silentCloses.Load(),
		WriteErrors:      s.writeErrors.Load(),
	}
}

func workerStats(ps pools.WorkerPoolStats) []WorkerStats {
	workers := make([]WorkerStats, len(ps.Workers))
	for i, w := range ps.Workers {
		workers[i] = WorkerStats{
			ID:          w.ID,
			Connections: w.Completed,
			Busy:        w.Busy,
		}
	}
	return workers
}

// JSON returns the snapshot as indented JSON
func (s Stats) JSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// String returns the snapshot as human-readable text
func (s Stats) String() string {
	return fmt.Sprintf(`Server Statistics
=================
State:       %s
Accepted:    %d
Rejected:    %d
Responses:   %d (2xx %d, 4xx %d, 5xx %d)
Malformed:   %d
Not found:   %d
Faults:      %d
Workers:     %d
`,
		s.State, s.Accepted, s.Rejected,
		s.Responses, s.Status2xx, s.Status4xx, s.Status5xx,
		s.Malformed, s.NotFound, s.HandlerFaults, len(s.Workers),
	)
}
