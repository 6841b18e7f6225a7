package ingest

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/resilience"
	"github.com/sells-group/congress-cli/internal/resolve"
)

// EraTally counts attempts within one format era.
type EraTally struct {
	Supported bool `json:"supported"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	// Skipped counts artifacts left alone because their last attempt
	// succeeded on the same file.
	Skipped int `json:"skipped"`
}

// Summary reports one ingestion run.
type Summary struct {
	RunID        string                           `json:"run_id"`
	StartedAt    time.Time                        `json:"started_at"`
	Duration     time.Duration                    `json:"duration_ns"`
	Seen         int                              `json:"seen"`
	Succeeded    int                              `json:"succeeded"`
	Failed       int                              `json:"failed"`
	Skipped      int                              `json:"skipped"`
	NotReady     int                              `json:"not_ready"`
	Filtered     int                              `json:"filtered"`
	Unrecognized int64                            `json:"unrecognized"`
	Unreadable   int64                            `json:"unreadable"`
	Outcomes     map[model.Outcome]int            `json:"outcomes"`
	Kinds        map[model.ArtifactKind]int       `json:"kinds"`
	Errors       map[resilience.Kind]int          `json:"errors,omitempty"`
	Eras         map[string]*EraTally             `json:"eras"`
	Resolution   []resolve.Result                 `json:"resolution,omitempty"`
	Checkpoint   *model.Checkpoint                `json:"checkpoint,omitempty"`
	touched      map[int]struct{}
	deadAfter    int
	mu           sync.Mutex
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: started,
		Outcomes:  make(map[model.Outcome]int),
		Kinds:     make(map[model.ArtifactKind]int),
		Errors:    make(map[resilience.Kind]int),
		Eras:      make(map[string]*EraTally),
		touched:   make(map[int]struct{}),
	}
}

func (s *Summary) era(id string, supported bool) *EraTally {
	t, ok := s.Eras[id]
	if !ok {
		t = &EraTally{Supported: supported}
		s.Eras[id] = t
	}
	return t
}

func (s *Summary) seen(d model.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seen++
	s.touched[d.Congress] = struct{}{}
}

func (s *Summary) attempted(eraID string, supported bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.era(eraID, supported).Attempted++
}

func (s *Summary) succeeded(d model.Descriptor, eraID string, outcome model.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded++
	s.Kinds[d.Kind]++
	s.Outcomes[outcome]++
	if eraID != "" {
		s.era(eraID, true).Succeeded++
	}
}

func (s *Summary) failed(d model.Descriptor, eraID string, kind resilience.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Kinds[d.Kind]++
	s.Errors[kind]++
	if eraID != "" {
		s.era(eraID, kind != resilience.UnsupportedFormatEra).Failed++
	}
}

func (s *Summary) skipped(d model.Descriptor, eraID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Skipped++
	s.Kinds[d.Kind]++
	if eraID != "" {
		s.era(eraID, true).Skipped++
	}
}

// notReady counts an artifact still being written. It is also a skip.
func (s *Summary) notReady(d model.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NotReady++
	s.Skipped++
	s.Kinds[d.Kind]++
}

func (s *Summary) filtered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filtered++
}

// Congresses returns the congresses the run saw, in order.
func (s *Summary) Congresses() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.touched))
	for c := range s.touched {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// DeadEras lists supported eras where every attempt of this run failed, in
// order. An era needs at least ingest.systemic_min_attempts attempts to
// count, and any artifact skipped as already ingested clears it: a resumed
// run that retries one bad file is not a broken era.
func (s *Summary) DeadEras() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	minAttempts := max(s.deadAfter, 1)
	var out []string
	for id, t := range s.Eras {
		if t.Supported && t.Attempted >= minAttempts && t.Succeeded == 0 && t.Skipped == 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// AsMap renders the summary for the run log.
func (s *Summary) AsMap() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
