package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/stats"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// Directory manages users, groups and auth tokens. Every mutation rewrites
// the backing JSON document; a write failure is logged and retried on the
// next mutation.
type Directory struct {
	fileName string
	logger   zerolog.Logger
	stats    *stats.Service

	mu     sync.Mutex
	users  []types.UserInfo
	groups []types.GroupInfo
	tokens []types.AuthToken

	userChanged func(types.UserInfo)
}

// New opens the directory backed by fileName, seeding it with the reserved
// users and groups when the file does not exist yet.
func New(fileName string) (*Directory, error) {
	d := &Directory{
		fileName: fileName,
		logger:   log.WithComponent("directory"),
		stats:    stats.NewService("userService"),
	}

	if _, err := os.Stat(fileName); err == nil {
		if err := d.readFile(); err != nil {
			return nil, err
		}
		return d, nil
	}

	d.groups = []types.GroupInfo{
		{Name: types.RootGroup},
		{Name: types.GuestGroup},
		{Name: types.UserGroup},
	}
	d.users = []types.UserInfo{
		{Name: types.RootUser, GroupNames: []string{types.RootGroup}},
		{Name: types.GuestUser, GroupNames: []string{types.GuestGroup}},
	}
	if err := d.writeFile(); err != nil {
		return nil, err
	}
	return d, nil
}

// OnUserChanged registers the callback invoked whenever a user record is
// modified in place, including by a group-removal cascade. Wiring is static
// at startup.
func (d *Directory) OnUserChanged(fn func(types.UserInfo)) {
	d.userChanged = fn
}

// ContainsUser reports whether a user with the given name exists.
func (d *Directory) ContainsUser(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findUserLocked(name) >= 0
}

// FindUser returns the named user, or a null user when absent.
func (d *Directory) FindUser(name string) types.UserInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.findUserLocked(name); i >= 0 {
		return d.users[i]
	}
	return types.UserInfo{}
}

// Users returns a snapshot of all users.
func (d *Directory) Users() []types.UserInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.UserInfo, len(d.users))
	copy(out, d.users)
	return out
}

// ContainsGroup reports whether a group with the given name exists.
func (d *Directory) ContainsGroup(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findGroupLocked(name) >= 0
}

// FindGroup returns the named group, or a zero group when absent.
func (d *Directory) FindGroup(name string) types.GroupInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.findGroupLocked(name); i >= 0 {
		return d.groups[i]
	}
	return types.GroupInfo{}
}

// Groups returns a snapshot of all groups.
func (d *Directory) Groups() []types.GroupInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.GroupInfo, len(d.groups))
	copy(out, d.groups)
	return out
}

// Tokens returns a snapshot of all tokens.
func (d *Directory) Tokens() []types.AuthToken {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.AuthToken, len(d.tokens))
	copy(out, d.tokens)
	return out
}

// ContainsToken reports whether a token with the given resource name and
// content exists.
func (d *Directory) ContainsToken(resourceName, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tokens {
		if t.ResourceName == resourceName && t.Content == content {
			return true
		}
	}
	return false
}

// FindToken returns the token with the given id, or a null token.
func (d *Directory) FindToken(id uuid.UUID) types.AuthToken {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tokens {
		if t.ID == id {
			return t
		}
	}
	return types.AuthToken{}
}

// AddUser inserts a new user. The name must be valid and unused and every
// referenced group must exist.
func (d *Directory) AddUser(user types.UserInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("user", user.Name).Msg("Adding user")

	if !types.IsNameValid(user.Name) {
		return types.NewError(types.ErrInvalidInput, "User name %q is not valid", user.Name)
	}
	if d.findUserLocked(user.Name) >= 0 {
		return types.NewError(types.ErrInvalidInput, "User with given name already exists")
	}
	for _, groupName := range user.GroupNames {
		if d.findGroupLocked(groupName) < 0 {
			return types.NewError(types.ErrInvalidInput, "User group %q does not exist", groupName)
		}
	}

	d.users = append(d.users, user)
	d.persistLocked()
	return nil
}

// SetUser replaces the user stored under name.
func (d *Directory) SetUser(name string, user types.UserInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("user", name).Msg("Updating user")

	if !types.IsNameValid(user.Name) {
		return types.NewError(types.ErrInvalidInput, "User name %q is not valid", user.Name)
	}
	for _, groupName := range user.GroupNames {
		if d.findGroupLocked(groupName) < 0 {
			return types.NewError(types.ErrInvalidInput, "User group %q does not exist", groupName)
		}
	}

	i := d.findUserLocked(name)
	if i < 0 {
		return types.NewError(types.ErrInvalidInput, "User with given name does not exist")
	}
	d.users[i] = user
	d.persistLocked()
	d.notifyUserChanged(user)
	return nil
}

// RemoveUser deletes the named user.
func (d *Directory) RemoveUser(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("user", name).Msg("Removing user")

	i := d.findUserLocked(name)
	if i < 0 {
		return types.NewError(types.ErrInvalidInput, "User with given name does not exist")
	}
	d.users = append(d.users[:i], d.users[i+1:]...)
	d.persistLocked()
	return nil
}

// AddGroup inserts a new group.
func (d *Directory) AddGroup(group types.GroupInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("group", group.Name).Msg("Adding group")

	if !types.IsNameValid(group.Name) {
		return types.NewError(types.ErrInvalidInput, "Group name %q is not valid", group.Name)
	}
	if d.findGroupLocked(group.Name) >= 0 {
		return types.NewError(types.ErrInvalidInput, "Group with given name already exists")
	}
	d.groups = append(d.groups, group)
	d.persistLocked()
	return nil
}

// SetGroup replaces the group with the same name.
func (d *Directory) SetGroup(group types.GroupInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !types.IsNameValid(group.Name) {
		return types.NewError(types.ErrInvalidInput, "Group name %q is not valid", group.Name)
	}
	i := d.findGroupLocked(group.Name)
	if i < 0 {
		return types.NewError(types.ErrInvalidInput, "Group with given name does not exist")
	}
	d.groups[i] = group
	d.persistLocked()
	return nil
}

// RemoveGroup deletes the named group and drops it from every member's
// group list, notifying a user-changed event per affected user.
func (d *Directory) RemoveGroup(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("group", name).Msg("Removing group")

	i := d.findGroupLocked(name)
	if i < 0 {
		return types.NewError(types.ErrInvalidInput, "Group with given name does not exist")
	}
	d.groups = append(d.groups[:i], d.groups[i+1:]...)

	var affected []types.UserInfo
	for ui := range d.users {
		if !d.users[ui].HasGroup(name) {
			continue
		}
		kept := d.users[ui].GroupNames[:0]
		for _, g := range d.users[ui].GroupNames {
			if g != name {
				kept = append(kept, g)
			}
		}
		d.users[ui].GroupNames = kept
		affected = append(affected, d.users[ui])
	}

	d.persistLocked()
	for _, u := range affected {
		d.notifyUserChanged(u)
	}
	return nil
}

// AddToken inserts a new token. Duplicate ids and duplicate
// (resource, content) pairs are rejected.
func (d *Directory) AddToken(token types.AuthToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info().Str("token_id", token.ID.String()).Str("resource", token.ResourceName).Msg("Adding token")

	if token.IsNull() {
		return types.NewError(types.ErrInvalidInput, "Token is not valid")
	}
	for _, t := range d.tokens {
		if t.ID == token.ID {
			return types.NewError(types.ErrInvalidInput, "Token with given ID already exists")
		}
		if t.ResourceName == token.ResourceName && t.Content == token.Content {
			return types.NewError(types.ErrInvalidInput, "Token with given resource name and content already exists")
		}
	}
	d.tokens = append(d.tokens, token)
	d.persistLocked()
	return nil
}

// RemoveToken deletes the token with the given id.
func (d *Directory) RemoveToken(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeTokenLocked(id)
}

func (d *Directory) removeTokenLocked(id uuid.UUID) error {
	d.logger.Info().Str("token_id", id.String()).Msg("Removing token")
	for i, t := range d.tokens {
		if t.ID == id {
			d.tokens = append(d.tokens[:i], d.tokens[i+1:]...)
			d.persistLocked()
			return nil
		}
	}
	return types.NewError(types.ErrInvalidInput, "Token with given ID does not exist")
}

// ValidateToken checks a bearer credential against the stored tokens. The
// matching token, when found, is removed whether or not it is still valid,
// so a credential can be probed at most once.
func (d *Directory) ValidateToken(resourceName, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	var found *types.AuthToken
	for i := range d.tokens {
		if d.tokens[i].ResourceName == resourceName && d.tokens[i].Content == content {
			found = &d.tokens[i]
			break
		}
	}
	if found == nil {
		return false
	}

	valid := found.ValidityDate > time.Now().UTC().Unix()

	if err := d.removeTokenLocked(found.ID); err != nil {
		d.logger.Error().Err(err).Msg("Failed to remove used auth token")
	}
	return valid
}

// CreateUser builds the default record for a newly named user: a member of
// the users group.
func CreateUser(name string) types.UserInfo {
	return types.UserInfo{Name: name, GroupNames: []string{types.UserGroup}}
}

// CreateGroup builds the record for a newly named group.
func CreateGroup(name string) types.GroupInfo {
	return types.GroupInfo{Name: name}
}

// Statistics returns the service statistics snapshot.
func (d *Directory) Statistics() map[string]interface{} {
	d.mu.Lock()
	users := int64(len(d.users))
	groups := int64(len(d.groups))
	d.mu.Unlock()

	d.stats.SetCounter("users", users)
	d.stats.SetCounter("groups", groups)
	return d.stats.Snapshot()
}

// Flush rewrites the directory document.
func (d *Directory) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeFile()
}

func (d *Directory) notifyUserChanged(user types.UserInfo) {
	if d.userChanged != nil {
		d.userChanged(user)
	}
}

func (d *Directory) findUserLocked(name string) int {
	for i, u := range d.users {
		if u.Name == name {
			return i
		}
	}
	return -1
}

func (d *Directory) findGroupLocked(name string) int {
	for i, g := range d.groups {
		if g.Name == name {
			return i
		}
	}
	return -1
}

// persistLocked rewrites the document, logging instead of failing: the
// in-memory state is authoritative and the next mutation retries the write.
func (d *Directory) persistLocked() {
	if err := d.writeFile(); err != nil {
		d.logger.Error().Err(err).Str("file", d.fileName).Msg("Failed to write users file")
	}
}

type document struct {
	Users  []types.UserInfo  `json:"users"`
	Groups []types.GroupInfo `json:"groups"`
	Tokens []types.AuthToken `json:"tokens"`
}

func (d *Directory) readFile() error {
	data, err := os.ReadFile(d.fileName)
	if err != nil {
		return fmt.Errorf("failed to read users file %q: %w", d.fileName, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse users file %q: %w", d.fileName, err)
	}
	d.users = doc.Users
	d.groups = doc.Groups
	d.tokens = doc.Tokens
	d.logger.Info().Str("file", d.fileName).Int("bytes", len(data)).Msg("Read users file")
	return nil
}

func (d *Directory) writeFile() error {
	doc := document{Users: d.users, Groups: d.groups, Tokens: d.tokens}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize users: %w", err)
	}
	if err := renameio.WriteFile(d.fileName, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write users file %q: %w", d.fileName, err)
	}
	return nil
}
