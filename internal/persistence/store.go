package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SweepResult is one error sweep: the relative error per basis count (or
// per round) for one target function, keyed by the ODE epsilon when the
// target has one.
type SweepResult struct {
	RunID     string    `json:"run_id"`
	Function  string    `json:"function"`
	Epsilon   *float64  `json:"epsilon,omitempty"`
	Trainer   string    `json:"trainer"`
	Errors    []float64 `json:"errors"`
	CreatedAt time.Time `json:"created_at"`
}

// Saver is the write half shared by the stores; the breaker guard wraps
// it.
type Saver interface {
	SaveSweep(ctx context.Context, res SweepResult) error
}

// SweepFile is the persisted shape: {"error": [...]} for plain sweeps,
// {"error": {"<epsilon>": [...]}} for epsilon-keyed families. Exactly one
// of Plain and Keyed is set.
type SweepFile struct {
	Plain []float64
	Keyed map[string][]float64
}

func (f SweepFile) MarshalJSON() ([]byte, error) {
	if f.Keyed != nil {
		return json.Marshal(map[string]any{"error": f.Keyed})
	}
	return json.Marshal(map[string]any{"error": f.Plain})
}

func (f *SweepFile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var keyed map[string][]float64
	if err := json.Unmarshal(raw.Error, &keyed); err == nil {
		f.Keyed = keyed
		return nil
	}
	var plain []float64
	if err := json.Unmarshal(raw.Error, &plain); err != nil {
		return fmt.Errorf("error field is neither a list nor a keyed map: %w", err)
	}
	f.Plain = plain
	return nil
}

// EpsilonKey formats an epsilon the way it is keyed on disk.
func EpsilonKey(eps float64) string {
	return strconv.FormatFloat(eps, 'g', -1, 64)
}

// ParseEpsilonKey inverts EpsilonKey.
func ParseEpsilonKey(key string) (float64, error) {
	eps, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed epsilon key %q: %w", key, err)
	}
	return eps, nil
}

// FileStore persists sweeps as one JSON file per target function.
// Epsilon-keyed sweeps merge into the existing file so successive runs
// accumulate a family of curves; plain sweeps replace the file.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(function string) string {
	return filepath.Join(s.dir, "error_"+function+".json")
}

// SaveSweep writes one sweep, merging epsilon-keyed results into any
// existing family for the same function.
func (s *FileStore) SaveSweep(ctx context.Context, res SweepResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Function == "" {
		return fmt.Errorf("sweep has no function name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var file SweepFile
	if res.Epsilon != nil {
		existing, err := s.load(res.Function)
		if err != nil {
			return err
		}
		if existing.Keyed == nil {
			existing.Keyed = make(map[string][]float64)
		}
		existing.Keyed[EpsilonKey(*res.Epsilon)] = res.Errors
		existing.Plain = nil
		file = existing
	} else {
		file = SweepFile{Plain: res.Errors}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sweep: %w", err)
	}
	if err := os.WriteFile(s.path(res.Function), data, 0o644); err != nil {
		return fmt.Errorf("write sweep: %w", err)
	}
	return nil
}

// LoadSweep reads the persisted file for a function. A missing file is an
// empty SweepFile, not an error.
func (s *FileStore) LoadSweep(ctx context.Context, function string) (SweepFile, error) {
	if err := ctx.Err(); err != nil {
		return SweepFile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(function)
}

func (s *FileStore) load(function string) (SweepFile, error) {
	data, err := os.ReadFile(s.path(function))
	if os.IsNotExist(err) {
		return SweepFile{}, nil
	}
	if err != nil {
		return SweepFile{}, fmt.Errorf("read sweep: %w", err)
	}
	var file SweepFile
	if err := json.Unmarshal(data, &file); err != nil {
		return SweepFile{}, fmt.Errorf("decode sweep for %s: %w", function, err)
	}
	return file, nil
}

// ListFunctions returns the functions with persisted sweeps, sorted.
func (s *FileStore) ListFunctions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list results directory: %w", err)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "error_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(name, "error_"), ".json"))
	}
	sort.Strings(out)
	return out, nil
}
