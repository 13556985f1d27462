package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/access"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/stats"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// adminActions are owned by root:root under the default policy; everything
// else is owned by root:users.
var adminActions = map[string]bool{
	types.ActionFileUpdateAccessOwner:    true,
	types.ActionStop:                     true,
	types.ActionStatistics:               true,
	types.ActionProcess:                  true,
	types.ActionUserAdd:                  true,
	types.ActionUserUpdate:               true,
	types.ActionUserRemove:               true,
	types.ActionGroupAdd:                 true,
	types.ActionGroupRemove:              true,
	types.ActionUpdateAccessOwner:        true,
	types.ActionUpdateAccessMode:         true,
	types.ActionProcessUpdateAccessOwner: true,
	types.ActionProcessUpdateAccessMode:  true,
}

// publicActions additionally grant execute to other under the default
// policy.
var publicActions = map[string]bool{
	types.ActionTest:         true,
	types.ActionFileList:     true,
	types.ActionFileInfo:     true,
	types.ActionFileDownload: true,
	types.ActionUserRegister: true,
	types.ActionProcess:      true,
	types.ActionReportSubmit: true,
}

// Catalog is the persisted list of action access rights.
type Catalog struct {
	fileName string
	logger   zerolog.Logger
	stats    *stats.Service

	mu      sync.Mutex
	actions []types.ActionInfo
}

// New loads the catalog from fileName, fills in default policy entries for
// any action missing from it, and rewrites the merged catalog. Entries read
// from disk take precedence over defaults.
func New(fileName string) (*Catalog, error) {
	c := &Catalog{
		fileName: fileName,
		logger:   log.WithComponent("actions"),
		stats:    stats.NewService("actionService"),
	}

	if _, err := os.Stat(fileName); err == nil {
		if err := c.readFile(); err != nil {
			return nil, err
		}
	}

	loaded := make(map[string]bool, len(c.actions))
	for _, a := range c.actions {
		loaded[a.Name] = true
	}

	for _, name := range types.ActionNames() {
		if loaded[name] {
			continue
		}
		c.actions = append(c.actions, types.ActionInfo{
			Name:         name,
			AccessRights: defaultRights(name),
		})
	}

	if err := c.writeFile(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultRights(name string) types.AccessRights {
	owner := types.AccessOwner{User: types.RootUser, Group: types.UserGroup}
	if adminActions[name] {
		owner.Group = types.RootGroup
	}
	mode := types.AccessMode{User: types.ModeExecute, Group: types.ModeExecute, Other: types.ModeNone}
	if publicActions[name] {
		mode.Other = types.ModeExecute
	}
	return types.AccessRights{Owner: owner, Mode: mode}
}

// ContainsAction reports whether the named action is cataloged.
func (c *Catalog) ContainsAction(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(name) >= 0
}

// FindAction returns the catalog entry for name, or a zero entry.
func (c *Catalog) FindAction(name string) types.ActionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.findLocked(name); i >= 0 {
		return c.actions[i]
	}
	return types.ActionInfo{}
}

// Actions returns a snapshot of the catalog.
func (c *Catalog) Actions() []types.ActionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ActionInfo, len(c.actions))
	copy(out, c.actions)
	return out
}

// AuthorizeUser reports whether user may execute the named action.
func (c *Catalog) AuthorizeUser(user types.UserInfo, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findLocked(name)
	if i < 0 {
		return false
	}
	return access.Authorize(user, c.actions[i].AccessRights, types.ModeExecute)
}

// UpdateAccessRights replaces the rights of the named action and persists
// the catalog.
func (c *Catalog) UpdateAccessRights(name string, rights types.AccessRights) (types.ActionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !rights.IsValid() {
		return types.ActionInfo{}, types.NewError(types.ErrInvalidInput, "Invalid access rights %q", rights.String())
	}
	i := c.findLocked(name)
	if i < 0 {
		return types.ActionInfo{}, types.NewError(types.ErrInvalidInput, "Action name %q does not exist", name)
	}
	c.logger.Info().Str("action", name).Str("rights", rights.String()).Msg("Updating action access rights")
	c.actions[i].AccessRights = rights
	if err := c.writeFile(); err != nil {
		c.logger.Error().Err(err).Str("file", c.fileName).Msg("Failed to write actions file")
	}
	return c.actions[i], nil
}

// Statistics returns the service statistics snapshot.
func (c *Catalog) Statistics() map[string]interface{} {
	c.mu.Lock()
	size := int64(len(c.actions))
	c.mu.Unlock()
	c.stats.SetCounter("size", size)
	return c.stats.Snapshot()
}

// Flush rewrites the catalog document.
func (c *Catalog) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeFile()
}

func (c *Catalog) findLocked(name string) int {
	for i, a := range c.actions {
		if a.Name == name {
			return i
		}
	}
	return -1
}

type document struct {
	Actions []types.ActionInfo `json:"actions"`
}

func (c *Catalog) readFile() error {
	data, err := os.ReadFile(c.fileName)
	if err != nil {
		return fmt.Errorf("failed to read actions file %q: %w", c.fileName, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse actions file %q: %w", c.fileName, err)
	}
	c.actions = doc.Actions
	c.logger.Info().Str("file", c.fileName).Int("bytes", len(data)).Msg("Read actions file")
	return nil
}

func (c *Catalog) writeFile() error {
	data, err := json.MarshalIndent(document{Actions: c.actions}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize actions: %w", err)
	}
	if err := renameio.WriteFile(c.fileName, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write actions file %q: %w", c.fileName, err)
	}
	return nil
}
