package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	prefsFile     = ".yoga/prefs.json"
	prefsLockFile = ".yoga/prefs.json.lock"
)

// Prefs is the per-studio preferences file. It records whether the one-time
// import from the remote store has finished.
type Prefs struct {
	baseDir string
}

type prefsData struct {
	InitialSyncComplete bool       `json:"initial_sync_complete"`
	InitialSyncAt       *time.Time `json:"initial_sync_at,omitempty"`
}

// OpenPrefs returns the preferences stored under baseDir
func OpenPrefs(baseDir string) *Prefs {
	return &Prefs{baseDir: baseDir}
}

func (p *Prefs) load() (*prefsData, error) {
	data, err := os.ReadFile(filepath.Join(p.baseDir, prefsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &prefsData{}, nil
		}
		return nil, err
	}
	var d prefsData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *Prefs) save(d *prefsData) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(p.baseDir, prefsFile), data, 0644)
}

// update runs fn on the current prefs and saves the result under the lock
func (p *Prefs) update(fn func(*prefsData)) error {
	return withLock(filepath.Join(p.baseDir, prefsLockFile), func() error {
		d, err := p.load()
		if err != nil {
			return err
		}
		fn(d)
		return p.save(d)
	})
}

// InitialSyncComplete reports whether the initial import has finished
func (p *Prefs) InitialSyncComplete() (bool, error) {
	d, err := p.load()
	if err != nil {
		return false, err
	}
	return d.InitialSyncComplete, nil
}

// InitialSyncAt returns when the initial import finished, or nil
func (p *Prefs) InitialSyncAt() (*time.Time, error) {
	d, err := p.load()
	if err != nil {
		return nil, err
	}
	return d.InitialSyncAt, nil
}

// SetInitialSyncComplete persists the import flag
func (p *Prefs) SetInitialSyncComplete(done bool) error {
	return p.update(func(d *prefsData) {
		d.InitialSyncComplete = done
		if done {
			now := time.Now().UTC()
			d.InitialSyncAt = &now
		} else {
			d.InitialSyncAt = nil
		}
	})
}

// ResetInitialSync clears the flag so the next start imports again
func (p *Prefs) ResetInitialSync() error {
	return p.SetInitialSyncComplete(false)
}
