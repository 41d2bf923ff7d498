// Package environment provisions the isolated playable space for each match.
// A template directory is copied into a uniquely named instance directory,
// loaded through the host Runtime and removed again when the match is torn
// down.
package environment

import (
	"context"
	"fmt"
	"github.com/lefinal/minigame-host/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Files that are removed from copied instances.
const (
	// UIDFile holds the unique identifier of a world. Copies must not share it.
	UIDFile = "uid.dat"
	// SessionLockFile is held by the runtime while the template is loaded.
	SessionLockFile = "session.lock"
)

// Defaults for Config.
const (
	DefaultInstancePrefix    = "match_"
	DefaultCopyWarnThreshold = 10 * time.Second
	DefaultLoadWarnThreshold = 30 * time.Second
)

// Flags are fixed settings applied to every loaded instance.
type Flags struct {
	// DaylightCycle describes whether time advances.
	DaylightCycle bool `json:"daylight_cycle"`
	// WeatherCycle describes whether weather changes.
	WeatherCycle bool `json:"weather_cycle"`
	// MobSpawning describes whether ambient creatures spawn.
	MobSpawning bool `json:"mob_spawning"`
	// FixedTime is the clock position the instance is frozen at.
	FixedTime int64 `json:"fixed_time"`
}

// FixedFlags are the Flags applied to all match instances.
var FixedFlags = Flags{
	DaylightCycle: false,
	WeatherCycle:  false,
	MobSpawning:   false,
	FixedTime:     6000,
}

// Runtime is the host runtime that actually loads and unloads instances.
type Runtime interface {
	// Load the instance with the given name from the directory and apply the
	// Flags.
	Load(ctx context.Context, name string, dir string, flags Flags) error
	// Unload the instance with the given name without saving changes.
	Unload(name string) error
}

// Config is the configuration for a Provisioner.
type Config struct {
	// TemplateDir holds one subdirectory per template.
	TemplateDir string
	// InstanceDir is where instance directories are created.
	InstanceDir string
	// InstancePrefix is the prefix for instance directory names. It is used for
	// detecting orphans, so nothing else in InstanceDir should use it.
	InstancePrefix string
	// CopyWarnThreshold is the duration after which a slow copy is logged.
	CopyWarnThreshold time.Duration
	// LoadWarnThreshold is the duration after which a slow load is logged.
	LoadWarnThreshold time.Duration
}

// Instance is a provisioned environment for a match.
type Instance struct {
	// MatchID is the id of the match the instance belongs to.
	MatchID string
	// Template is the name of the template that was copied.
	Template string
	// Name is the unique instance name.
	Name string
	// Dir is the instance directory.
	Dir string
}

// Provisioner creates and removes instances. It is safe for concurrent use as
// it is meant to be called outside the loop.
type Provisioner struct {
	logger  *zap.Logger
	config  Config
	runtime Runtime
	// instances holds provisioned instances by match id.
	instances map[string]Instance
	// reserved holds match ids that are currently being provisioned.
	reserved map[string]struct{}
	// m locks instances, reserved and random.
	m      sync.Mutex
	random *rand.Rand
	now    func() time.Time
}

// NewProvisioner creates a new Provisioner that uses the given Runtime for
// loading instances.
func NewProvisioner(logger *zap.Logger, config Config, runtime Runtime) *Provisioner {
	if config.InstancePrefix == "" {
		config.InstancePrefix = DefaultInstancePrefix
	}
	if config.CopyWarnThreshold <= 0 {
		config.CopyWarnThreshold = DefaultCopyWarnThreshold
	}
	if config.LoadWarnThreshold <= 0 {
		config.LoadWarnThreshold = DefaultLoadWarnThreshold
	}
	return &Provisioner{
		logger:    logger,
		config:    config,
		runtime:   runtime,
		instances: make(map[string]Instance),
		reserved:  make(map[string]struct{}),
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// Templates lists the names of all available templates in alphabetical order.
func (p *Provisioner) Templates() ([]string, error) {
	entries, err := os.ReadDir(p.config.TemplateDir)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "read template dir", errors.Details{"dir": p.config.TemplateDir})
	}
	templates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			templates = append(templates, entry.Name())
		}
	}
	sort.Strings(templates)
	return templates, nil
}

// resolveTemplate returns the given template if it exists or a random one if
// the name is empty.
func (p *Provisioner) resolveTemplate(templateName string) (string, error) {
	if templateName == "" {
		templates, err := p.Templates()
		if err != nil {
			return "", errors.Wrap(err, "list templates", nil)
		}
		if len(templates) == 0 {
			return "", errors.NewResourceNotFoundError("no templates available", errors.Details{"dir": p.config.TemplateDir})
		}
		p.m.Lock()
		templateName = templates[p.random.Intn(len(templates))]
		p.m.Unlock()
		return templateName, nil
	}
	if strings.ContainsAny(templateName, `/\`) || templateName == "." || templateName == ".." {
		return "", errors.NewUnknownTemplateError(templateName)
	}
	info, err := os.Stat(filepath.Join(p.config.TemplateDir, templateName))
	if err != nil || !info.IsDir() {
		return "", errors.NewUnknownTemplateError(templateName)
	}
	return templateName, nil
}

// Provision creates and loads an instance for the match with the given id. If
// no template name is given, a random one is picked. On failure, no instance is
// tracked and any partially created directory is removed.
func (p *Provisioner) Provision(ctx context.Context, matchID string, templateName string) (Instance, error) {
	// Reserve match id.
	p.m.Lock()
	_, tracked := p.instances[matchID]
	_, reserved := p.reserved[matchID]
	if tracked || reserved {
		p.m.Unlock()
		return Instance{}, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindAlreadyRunning,
			Message: "instance already provisioned for match",
			Details: errors.Details{"match_id": matchID},
		}
	}
	p.reserved[matchID] = struct{}{}
	p.m.Unlock()
	defer func() {
		p.m.Lock()
		delete(p.reserved, matchID)
		p.m.Unlock()
	}()
	templateName, err := p.resolveTemplate(templateName)
	if err != nil {
		return Instance{}, errors.Wrap(err, "resolve template", nil)
	}
	instance := Instance{
		MatchID:  matchID,
		Template: templateName,
		Name:     fmt.Sprintf("%s%s_%d", p.config.InstancePrefix, matchID, p.now().UnixMilli()),
	}
	instance.Dir = filepath.Join(p.config.InstanceDir, instance.Name)
	logger := p.logger.With(zap.String("match_id", matchID),
		zap.String("template", templateName),
		zap.String("instance", instance.Name))
	// Copy without identity files.
	start := time.Now()
	err = os.MkdirAll(p.config.InstanceDir, 0o755)
	if err != nil {
		return Instance{}, errors.NewProvisionFailureError(err, "create instance dir", errors.Details{"dir": p.config.InstanceDir})
	}
	err = copyDir(ctx, filepath.Join(p.config.TemplateDir, templateName), instance.Dir)
	if err != nil {
		p.rollback(logger, instance)
		return Instance{}, errors.NewProvisionFailureError(err, "copy template", errors.Details{
			"template": templateName,
			"instance": instance.Name,
		})
	}
	if took := time.Since(start); took > p.config.CopyWarnThreshold {
		logger.Warn(fmt.Sprintf("copying template took %v", took), zap.Duration("threshold", p.config.CopyWarnThreshold))
	}
	// Load.
	start = time.Now()
	err = p.runtime.Load(ctx, instance.Name, instance.Dir, FixedFlags)
	if err != nil {
		p.rollback(logger, instance)
		return Instance{}, errors.NewProvisionFailureError(err, "load instance", errors.Details{"instance": instance.Name})
	}
	if took := time.Since(start); took > p.config.LoadWarnThreshold {
		logger.Warn(fmt.Sprintf("loading instance took %v", took), zap.Duration("threshold", p.config.LoadWarnThreshold))
	}
	p.m.Lock()
	p.instances[matchID] = instance
	p.m.Unlock()
	logger.Debug("instance provisioned")
	return instance, nil
}

// rollback removes the directory of a failed provision.
func (p *Provisioner) rollback(logger *zap.Logger, instance Instance) {
	err := os.RemoveAll(instance.Dir)
	if err != nil {
		errors.Log(logger, errors.NewInternalErrorFromErr(err, "remove partial instance dir", errors.Details{"dir": instance.Dir}))
	}
}

// Release unloads the instance of the match with the given id without saving
// and removes its directory. The instance is forgotten in any case, even if
// unloading or removal fails.
func (p *Provisioner) Release(matchID string) error {
	p.m.Lock()
	instance, ok := p.instances[matchID]
	p.m.Unlock()
	if !ok {
		return errors.NewResourceNotFoundError("no instance for match", errors.Details{"match_id": matchID})
	}
	defer func() {
		p.m.Lock()
		delete(p.instances, matchID)
		p.m.Unlock()
	}()
	var err error
	if unloadErr := p.runtime.Unload(instance.Name); unloadErr != nil {
		err = multierr.Append(err, fmt.Errorf("unload: %w", unloadErr))
	}
	if removeErr := os.RemoveAll(instance.Dir); removeErr != nil {
		err = multierr.Append(err, fmt.Errorf("remove dir: %w", removeErr))
	}
	if err != nil {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindPartialTeardown,
			Err:     err,
			Message: "release instance",
			Details: errors.Details{
				"match_id": matchID,
				"instance": instance.Name,
			},
		}
	}
	p.logger.Debug("instance released", zap.String("match_id", matchID), zap.String("instance", instance.Name))
	return nil
}

// Instance returns the tracked Instance for the match with the given id.
func (p *Provisioner) Instance(matchID string) (Instance, bool) {
	p.m.Lock()
	defer p.m.Unlock()
	instance, ok := p.instances[matchID]
	return instance, ok
}

// CleanupOrphans removes all instance directories that are not tracked. This
// is meant to be called once on startup for cleaning up after an unclean
// shutdown. It returns the number of removed directories.
func (p *Provisioner) CleanupOrphans() (int, error) {
	entries, err := os.ReadDir(p.config.InstanceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.NewInternalErrorFromErr(err, "read instance dir", errors.Details{"dir": p.config.InstanceDir})
	}
	p.m.Lock()
	tracked := make(map[string]struct{}, len(p.instances))
	for _, instance := range p.instances {
		tracked[instance.Name] = struct{}{}
	}
	p.m.Unlock()
	removed := 0
	var removeErr error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), p.config.InstancePrefix) {
			continue
		}
		if _, ok := tracked[entry.Name()]; ok {
			continue
		}
		dir := filepath.Join(p.config.InstanceDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			removeErr = multierr.Append(removeErr, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}
		p.logger.Info("removed orphaned instance", zap.String("instance", entry.Name()))
		removed++
	}
	if removeErr != nil {
		return removed, errors.NewInternalErrorFromErr(removeErr, "remove orphaned instances", nil)
	}
	return removed, nil
}
