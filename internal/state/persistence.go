package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	riskerrors "github.com/kestrel-trading/riskguard/pkg/errors"
)

// persistedFormat is the §6.3 wire format. Unknown fields are round-tripped
// verbatim via Extensions (forward-compatibility requirement).
type persistedFormat struct {
	Version              string                      `json:"version"`
	AccountID             string                      `json:"account_id"`
	OpenPositions         []*Position                 `json:"open_positions"`
	RealizedPnLToday      json.RawMessage             `json:"realized_pnl_today"`
	LockoutUntil          *time.Time                  `json:"lockout_until"`
	LockoutCause          string                      `json:"lockout_cause,omitempty"`
	CooldownUntil         *time.Time                  `json:"cooldown_until"`
	FrequencyWindows      map[string]*FrequencyWindow `json:"frequency_windows"`
	LastDailyReset        time.Time                   `json:"last_daily_reset"`
	LastProcessedEventID  string                      `json:"last_processed_event_id"`
	SavedAt               time.Time                   `json:"saved_at"`

	Extra map[string]json.RawMessage `json:"-"`
}

const formatVersion = "1"

// Persister implements the per-account file persistence of spec §4.2:
// write-temp-then-rename, fsync on critical events, 5s debounce for
// routine mutations, and corrupt-state quarantine on load. Grounded on
// the crypto-dca-bot StatePersistence.SaveState temp-file-then-os.Rename
// pattern (DESIGN.md: internal/state).
type Persister struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*AccountState
	timers  map[string]*time.Timer
	debounce time.Duration
}

// NewPersister builds a Persister rooted at dir, creating it if absent.
func NewPersister(dir string, logger *zap.Logger) (*Persister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, riskerrors.Wrap(err, riskerrors.ConfigInvalid, "state directory unwritable")
	}
	return &Persister{
		dir:      dir,
		logger:   logger,
		pending:  make(map[string]*AccountState),
		timers:   make(map[string]*time.Timer),
		debounce: 5 * time.Second,
	}, nil
}

func (p *Persister) accountPath(accountID string) string {
	return filepath.Join(p.dir, accountID+".json")
}

// FlushCritical writes snap immediately, fsyncing the file and its parent
// directory (spec §4.2 "Critical events (force immediate flush)").
func (p *Persister) FlushCritical(snap *AccountState) error {
	p.mu.Lock()
	if t, ok := p.timers[snap.AccountID]; ok {
		t.Stop()
		delete(p.timers, snap.AccountID)
		delete(p.pending, snap.AccountID)
	}
	p.mu.Unlock()
	return p.writeSync(snap)
}

// ScheduleDebounced coalesces non-critical mutations into a single write
// 5s after the first one of a burst, carrying the latest snapshot (spec
// §4.2 "Non-critical events... debounced at 5s").
func (p *Persister) ScheduleDebounced(snap *AccountState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[snap.AccountID] = snap
	if _, scheduled := p.timers[snap.AccountID]; scheduled {
		return
	}
	accountID := snap.AccountID
	p.timers[accountID] = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		latest := p.pending[accountID]
		delete(p.pending, accountID)
		delete(p.timers, accountID)
		p.mu.Unlock()
		if latest == nil {
			return
		}
		if err := p.writeSync(latest); err != nil && p.logger != nil {
			p.logger.Error("state: debounced flush failed", zap.String("account_id", accountID), zap.Error(err))
		}
	})
}

func (p *Persister) writeSync(snap *AccountState) error {
	realized, err := json.Marshal(snap.RealizedPnLToday)
	if err != nil {
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "marshal realized pnl")
	}
	positions := snap.AllPositionsSorted()
	out := persistedFormat{
		Version:              formatVersion,
		AccountID:            snap.AccountID,
		OpenPositions:        positions,
		RealizedPnLToday:     realized,
		LockoutUntil:         snap.LockoutUntil,
		LockoutCause:         snap.LockoutCause,
		CooldownUntil:        snap.CooldownUntil,
		FrequencyWindows:     snap.FrequencyWindows,
		LastDailyReset:       snap.LastDailyReset,
		LastProcessedEventID: snap.LastProcessedEventID,
		SavedAt:              time.Now().UTC(),
	}

	data, err := marshalWithExtensions(out, snap.Extensions)
	if err != nil {
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "marshal account state")
	}

	path := p.accountPath(snap.AccountID)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "open temp state file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "write temp state file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "fsync temp state file")
	}
	if err := f.Close(); err != nil {
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "close temp state file")
	}

	if err := os.Rename(tmp, path); err != nil {
		return riskerrors.Wrap(err, riskerrors.StateInconsistency, "rename state file")
	}

	if dirFile, err := os.Open(p.dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

// marshalWithExtensions merges the known fields of out with any unknown
// fields in extensions, so a forward-compatible reload never drops data
// it doesn't understand (spec §6.3).
func marshalWithExtensions(out persistedFormat, extensions map[string]interface{}) ([]byte, error) {
	known, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		return known, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range extensions {
		if _, exists := merged[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// LoadAll reads every *.json file in the state directory into an
// AccountState. A file that fails to parse is quarantined (renamed to
// state_corrupt_<timestamp>.gz, gzip-compressed so the quarantine
// directory doesn't grow unbounded) and the account starts empty (spec
// §4.2 "On load").
func (p *Persister) LoadAll() (map[string]*AccountState, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, riskerrors.Wrap(err, riskerrors.StateInconsistency, "read state directory")
	}

	out := make(map[string]*AccountState)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		accountID := e.Name()[:len(e.Name())-len(".json")]
		path := filepath.Join(p.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if p.logger != nil {
				p.logger.Error("state: failed reading state file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		a, err := parseAccountState(accountID, data)
		if err != nil {
			if p.logger != nil {
				p.logger.Error("state: corrupt state file, quarantining", zap.String("path", path), zap.Error(err))
			}
			p.quarantine(path, data)
			out[accountID] = NewAccountState(accountID, time.Now())
			continue
		}
		out[accountID] = a
	}
	return out, nil
}

func parseAccountState(accountID string, data []byte) (*AccountState, error) {
	var f persistedFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err == nil {
		for _, known := range knownFields {
			delete(extra, known)
		}
	}

	a := NewAccountState(accountID, time.Now())
	a.OpenPositions = make(map[string]*Position, len(f.OpenPositions))
	for _, pos := range f.OpenPositions {
		a.OpenPositions[pos.PositionID] = pos
	}
	if len(f.RealizedPnLToday) > 0 {
		if err := a.RealizedPnLToday.UnmarshalJSON(f.RealizedPnLToday); err != nil {
			return nil, err
		}
	}
	a.LockoutUntil = f.LockoutUntil
	a.LockoutCause = f.LockoutCause
	a.CooldownUntil = f.CooldownUntil
	if f.FrequencyWindows != nil {
		a.FrequencyWindows = f.FrequencyWindows
	}
	a.LastDailyReset = f.LastDailyReset
	a.LastProcessedEventID = f.LastProcessedEventID
	a.SavedAt = f.SavedAt

	if len(extra) > 0 {
		a.Extensions = make(map[string]interface{}, len(extra))
		for k, v := range extra {
			var val interface{}
			if err := json.Unmarshal(v, &val); err == nil {
				a.Extensions[k] = val
			}
		}
	}
	return a, nil
}

var knownFields = []string{
	"version", "account_id", "open_positions", "realized_pnl_today",
	"lockout_until", "lockout_cause", "cooldown_until", "frequency_windows",
	"last_daily_reset", "last_processed_event_id", "saved_at",
}

// quarantine renames a corrupt file to state_corrupt_<timestamp>.gz,
// gzip-compressed (grounded on internal/performance/message_compressor.go's
// klauspost/compress usage — DESIGN.md: internal/state).
func (p *Persister) quarantine(path string, data []byte) {
	ts := time.Now().UTC().Format("20060102T150405")
	dst := filepath.Join(p.dir, fmt.Sprintf("state_corrupt_%s.gz", ts))

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return
	}
	if err := gw.Close(); err != nil {
		return
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		if p.logger != nil {
			p.logger.Error("state: failed writing quarantine file", zap.Error(err))
		}
		return
	}
	os.Remove(path)
}
