package environment

import (
	"context"
	"encoding/json"
	"github.com/lefinal/minigame-host/errors"
	"os"
	"path/filepath"
	"sync"
)

// FlagsFile is the file LocalRuntime writes the applied Flags to.
const FlagsFile = "environment.json"

// LocalRuntime is a Runtime for hosts that pick up instance directories
// themselves. Loading validates the directory and writes the Flags to
// FlagsFile so that the host can apply them.
type LocalRuntime struct {
	// loaded holds the directories of loaded instances by name.
	loaded map[string]string
	m      sync.Mutex
}

// NewLocalRuntime creates a new LocalRuntime without any loaded instances.
func NewLocalRuntime() *LocalRuntime {
	return &LocalRuntime{
		loaded: make(map[string]string),
	}
}

// Load marks the instance as loaded and writes the Flags.
func (r *LocalRuntime) Load(ctx context.Context, name string, dir string, flags Flags) error {
	if ctx.Err() != nil {
		return errors.NewContextAbortedError("load instance")
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.NewResourceNotFoundError("instance dir not found", errors.Details{"dir": dir})
	}
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.loaded[name]; ok {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindAlreadyRunning,
			Message: "instance already loaded",
			Details: errors.Details{"instance": name},
		}
	}
	raw, err := json.MarshalIndent(flags, "", "  ")
	if err != nil {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal flags",
		}
	}
	err = os.WriteFile(filepath.Join(dir, FlagsFile), raw, 0o644)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "write flags file", errors.Details{"dir": dir})
	}
	r.loaded[name] = dir
	return nil
}

// Unload forgets the instance. Nothing is saved.
func (r *LocalRuntime) Unload(name string) error {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.loaded[name]; !ok {
		return errors.NewResourceNotFoundError("instance not loaded", errors.Details{"instance": name})
	}
	delete(r.loaded, name)
	return nil
}

// IsLoaded describes whether the instance with the given name is loaded.
func (r *LocalRuntime) IsLoaded(name string) bool {
	r.m.Lock()
	defer r.m.Unlock()
	_, ok := r.loaded[name]
	return ok
}
