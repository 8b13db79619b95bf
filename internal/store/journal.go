package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"option-taker/internal/core"
)

// RunState is the crash-safe snapshot of one execution run: target,
// accumulated fill, and the last known order id and status. If the process
// is killed mid-run this is what an operator reconciles from.
type RunState struct {
	Symbol      string           `json:"symbol"`
	Side        core.Side        `json:"side"`
	TargetQty   decimal.Decimal  `json:"target_qty"`
	FilledQty   decimal.Decimal  `json:"filled_qty"`
	LastOrderID int64            `json:"last_order_id,omitempty"`
	LastStatus  core.OrderStatus `json:"last_status,omitempty"`
	Iterations  int              `json:"iterations"`
	LastError   string           `json:"last_error,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

const runStateFile = "run.json"

// Journal persists RunState atomically (write temp, fsync, rename) under
// one directory per symbol/instance.
type Journal struct {
	dir string
	mu  sync.Mutex
}

func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) Save(state RunState) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(j.dir, runStateFile), data)
}

// Load returns the last persisted state. ok is false when no run has been
// journaled yet.
func (j *Journal) Load() (RunState, bool, error) {
	if j == nil {
		return RunState{}, false, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(j.dir, runStateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunState{}, false, nil
		}
		return RunState{}, false, err
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return RunState{}, false, err
	}
	return state, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-run-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
