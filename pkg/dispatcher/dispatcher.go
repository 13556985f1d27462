package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/catalog"
	"github.com/Range-Software/range-cloud/pkg/directory"
	"github.com/Range-Software/range-cloud/pkg/filestore"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/mailer"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/process"
	"github.com/Range-Software/range-cloud/pkg/report"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// Dispatcher routes authenticated actions to the owning service and emits
// exactly one resolved reply per action.
type Dispatcher struct {
	directory *directory.Directory
	actions   *catalog.Catalog
	processes *process.Manager
	files     *filestore.Service
	reports   *report.Archive
	mailer    *mailer.Mailer

	logger    zerolog.Logger
	version   string
	startTime time.Time

	mu              sync.Mutex
	fileRequests    map[uuid.UUID]uuid.UUID
	processRequests map[uuid.UUID]uuid.UUID

	resolved func(types.Action)
	stop     func()
}

// New wires the dispatcher to its services. The file and process
// completion callbacks are registered here; wiring is static.
func New(dir *directory.Directory, actions *catalog.Catalog, processes *process.Manager,
	files *filestore.Service, reports *report.Archive, m *mailer.Mailer, version string) *Dispatcher {
	d := &Dispatcher{
		directory:       dir,
		actions:         actions,
		processes:       processes,
		files:           files,
		reports:         reports,
		mailer:          m,
		logger:          log.WithComponent("dispatcher"),
		version:         version,
		startTime:       time.Now().UTC(),
		fileRequests:    make(map[uuid.UUID]uuid.UUID),
		processRequests: make(map[uuid.UUID]uuid.UUID),
	}
	files.OnCompleted(d.onFileRequestCompleted)
	processes.OnCompleted(d.onProcessRequestCompleted)
	return d
}

// OnResolved registers the reply sink. Every inbound action produces
// exactly one call.
func (d *Dispatcher) OnResolved(fn func(types.Action)) {
	d.resolved = fn
}

// OnStop registers the shutdown trigger invoked after a stop action
// resolves.
func (d *Dispatcher) OnStop(fn func()) {
	d.stop = fn
}

// PendingRequests returns the number of in-flight file and process
// requests.
func (d *Dispatcher) PendingRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fileRequests) + len(d.processRequests)
}

// ResolveAction translates one inbound action into exactly one future
// reply. from identifies the peer as "<owner>@<address>".
func (d *Dispatcher) ResolveAction(action types.Action, from string) {
	d.logger.Debug().Str("action", action.Name).Str("action_id", action.ID.String()).Msg("Resolving action")

	executorName := action.Executor
	if executorName == "" {
		executorName = types.GuestUser
	}

	executor := d.directory.FindUser(executorName)
	if executor.IsNull() {
		message := fmt.Sprintf("Invalid user. User %q is not valid.", executorName)
		d.logger.Warn().Msg(message)
		d.emit(action.Reply([]byte(message), types.ErrInvalidInput))
		return
	}

	if !types.IsActionName(action.Name) {
		message := fmt.Sprintf("Unknown action %q.", action.Name)
		d.logger.Error().Msg(message)
		d.emit(action.Reply([]byte(message), types.ErrInvalidInput))
		return
	}

	if !d.actions.AuthorizeUser(executor, action.Name) {
		message := fmt.Sprintf("Unauthorized access. User %q is not allowed to execute action %q.", executor.Name, action.Name)
		d.logger.Warn().Msg(message)
		d.emit(action.Reply([]byte(message), types.ErrUnauthorized))
		return
	}

	switch action.Name {
	case types.ActionTest:
		d.emit(action.Reply(action.Data, types.ErrNone))

	case types.ActionFileList:
		d.dispatchFile(action, executor, &types.FileObject{}, d.files.RequestListFiles)

	case types.ActionFileInfo:
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		d.dispatchFile(action, executor, object, d.files.RequestFileInfo)

	case types.ActionFileUpload:
		object := &types.FileObject{}
		object.Info.Path = action.ResourceName
		object.Info.ID = uuid.New()
		object.Info.AccessRights = types.AccessRights{
			Owner: types.AccessOwner{User: executor.Name, Group: types.UserGroup},
			Mode: types.AccessMode{
				User:  types.ModeRead | types.ModeWrite,
				Group: types.ModeRead,
				Other: types.ModeNone,
			},
		}
		object.Content = action.Data
		d.dispatchFile(action, executor, object, d.files.RequestStoreFile)

	case types.ActionFileUpdate:
		object := &types.FileObject{}
		object.Info.Path = action.ResourceName
		object.Info.ID = action.ResourceID
		object.Content = action.Data
		d.dispatchFile(action, executor, object, d.files.RequestUpdateFile)

	case types.ActionFileUpdateAccessOwner:
		var owner types.AccessOwner
		if err := json.Unmarshal(action.Data, &owner); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid access owner: %v", err)), types.ErrInvalidInput))
			return
		}
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		object.Info.AccessRights.Owner = owner
		d.dispatchFile(action, executor, object, d.files.RequestUpdateFileAccessOwner)

	case types.ActionFileUpdateAccessMode:
		var mode types.AccessMode
		if err := json.Unmarshal(action.Data, &mode); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid access mode: %v", err)), types.ErrInvalidInput))
			return
		}
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		object.Info.AccessRights.Mode = mode
		d.dispatchFile(action, executor, object, d.files.RequestUpdateFileAccessMode)

	case types.ActionFileUpdateVersion:
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		object.Info.Version = string(action.Data)
		d.dispatchFile(action, executor, object, d.files.RequestUpdateFileVersion)

	case types.ActionFileUpdateTags:
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		if len(action.Data) > 0 {
			object.Info.Tags = strings.Split(string(action.Data), ",")
		}
		d.dispatchFile(action, executor, object, d.files.RequestUpdateFileTags)

	case types.ActionFileDownload:
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		d.dispatchFile(action, executor, object, d.files.RequestRetrieveFile)

	case types.ActionFileRemove:
		object := &types.FileObject{}
		object.Info.ID = action.ResourceID
		d.dispatchFile(action, executor, object, d.files.RequestRemoveFile)

	case types.ActionStop:
		d.emit(action.Reply([]byte("Stop server triggered"), types.ErrNone))
		if d.stop != nil {
			d.stop()
		}

	case types.ActionStatistics:
		d.emit(d.statistics(action))

	case types.ActionProcess:
		d.resolveProcess(action, executor)

	case types.ActionUserList:
		d.emit(d.marshalReply(action, map[string]interface{}{"users": d.directory.Users()}))

	case types.ActionUserInfo:
		if !d.directory.ContainsUser(action.ResourceName) {
			d.emit(action.Reply([]byte(types.ErrNotFound.String()), types.ErrNotFound))
			return
		}
		d.emit(d.marshalReply(action, d.directory.FindUser(action.ResourceName)))

	case types.ActionUserAdd, types.ActionUserRegister:
		user := directory.CreateUser(action.ResourceName)
		if err := d.directory.AddUser(user); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(d.marshalReply(action, user))

	case types.ActionUserUpdate:
		var user types.UserInfo
		if err := json.Unmarshal(action.Data, &user); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid user: %v", err)), types.ErrInvalidInput))
			return
		}
		if err := d.directory.SetUser(action.ResourceName, user); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(d.marshalReply(action, user))

	case types.ActionUserRemove:
		if err := d.directory.RemoveUser(action.ResourceName); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(action.Reply([]byte(action.ResourceName), types.ErrNone))

	case types.ActionUserTokenList:
		if err := d.authorizeTokenAccess(executor, action.ResourceName, "list"); err != nil {
			d.emitError(action, err)
			return
		}
		tokens := []types.AuthToken{}
		for _, t := range d.directory.Tokens() {
			if t.ResourceName == action.ResourceName {
				tokens = append(tokens, t)
			}
		}
		d.emit(d.marshalReply(action, map[string]interface{}{"tokens": tokens}))

	case types.ActionUserTokenGenerate:
		if err := d.authorizeTokenAccess(executor, action.ResourceName, "generate"); err != nil {
			d.emitError(action, err)
			return
		}
		content, err := types.GenerateTokenContent()
		if err != nil {
			d.emitError(action, err)
			return
		}
		token := types.AuthToken{
			ID:           uuid.New(),
			ResourceName: action.ResourceName,
			Content:      content,
			ValidityDate: types.ValidityMonthsFromNow(1),
		}
		if err := d.directory.AddToken(token); err != nil {
			d.emitError(action, err)
			return
		}
		body := fmt.Sprintf("New authentication token has been created.\n\nResource: %s\nToken: %s\nValidity: %s",
			token.ResourceName, token.Content, time.Unix(token.ValidityDate, 0).UTC().String())
		d.mailer.Submit(token.ResourceName, "Authentication token created", body)
		d.emit(d.marshalReply(action, token))

	case types.ActionUserTokenRemove:
		if err := d.authorizeTokenAccess(executor, action.ResourceName, "remove"); err != nil {
			d.emitError(action, err)
			return
		}
		if err := d.directory.RemoveToken(action.ResourceID); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(action.Reply([]byte(action.ResourceID.String()), types.ErrNone))

	case types.ActionGroupList:
		d.emit(d.marshalReply(action, map[string]interface{}{"groups": d.directory.Groups()}))

	case types.ActionGroupInfo:
		if !d.directory.ContainsGroup(action.ResourceName) {
			d.emit(action.Reply([]byte(types.ErrNotFound.String()), types.ErrNotFound))
			return
		}
		d.emit(d.marshalReply(action, d.directory.FindGroup(action.ResourceName)))

	case types.ActionGroupAdd:
		group := directory.CreateGroup(action.ResourceName)
		if err := d.directory.AddGroup(group); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(d.marshalReply(action, group))

	case types.ActionGroupRemove:
		if err := d.directory.RemoveGroup(action.ResourceName); err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(action.Reply([]byte(action.ResourceName), types.ErrNone))

	case types.ActionList:
		d.emit(d.marshalReply(action, map[string]interface{}{"actions": d.actions.Actions()}))

	case types.ActionUpdateAccessOwner:
		d.resolveRightsUpdate(action, true, d.updateActionRights)

	case types.ActionUpdateAccessMode:
		d.resolveRightsUpdate(action, false, d.updateActionRights)

	case types.ActionProcessList:
		d.emit(d.marshalReply(action, map[string]interface{}{"processes": d.processes.Processes()}))

	case types.ActionProcessUpdateAccessOwner:
		d.resolveRightsUpdate(action, true, d.updateProcessRights)

	case types.ActionProcessUpdateAccessMode:
		d.resolveRightsUpdate(action, false, d.updateProcessRights)

	case types.ActionReportSubmit:
		var record types.ReportRecord
		if err := json.Unmarshal(action.Data, &record); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid report record: %v", err)), types.ErrInvalidInput))
			return
		}
		id, err := d.reports.Submit(from, record)
		if err != nil {
			d.emitError(action, err)
			return
		}
		d.emit(action.Reply([]byte(fmt.Sprintf("Report (id=%s) has been stored.", id)), types.ErrNone))

	default:
		message := fmt.Sprintf("Unknown action %q.", action.Name)
		d.logger.Error().Msg(message)
		d.emit(action.Reply([]byte(message), types.ErrInvalidInput))
	}
}

// dispatchFile registers the request-to-action mapping under the lock so
// the completion callback cannot observe an unmapped request id.
func (d *Dispatcher) dispatchFile(action types.Action, executor types.UserInfo,
	object *types.FileObject, request func(types.UserInfo, *types.FileObject) uuid.UUID) {
	d.mu.Lock()
	requestID := request(executor, object)
	d.fileRequests[requestID] = action.ID
	d.mu.Unlock()
}

func (d *Dispatcher) resolveProcess(action types.Action, executor types.UserInfo) {
	var request types.ProcessRequest
	if err := json.Unmarshal(action.Data, &request); err != nil {
		d.emit(action.Reply([]byte(fmt.Sprintf("Invalid process request: %v", err)), types.ErrInvalidInput))
		return
	}
	request.Executor = executor

	fail := func(err error) {
		response := types.ProcessResponse{
			Request: request,
			Message: err.Error(),
		}
		data, merr := json.Marshal(response)
		if merr != nil {
			data = []byte(err.Error())
		}
		d.emit(action.Reply(data, types.TypeOf(err)))
	}

	if !d.processes.ContainsProcess(request.Name) {
		fail(types.NewError(types.ErrInvalidInput, "Invalid process. Process %q is not valid.", request.Name))
		return
	}
	if !d.processes.AuthorizeUser(request.Executor, request.Name) {
		fail(types.NewError(types.ErrUnauthorized,
			"Unauthorized access. User %q is not allowed to execute process %q.", request.Executor.Name, request.Name))
		return
	}

	d.mu.Lock()
	requestID, err := d.processes.Submit(request)
	if err != nil {
		d.mu.Unlock()
		fail(err)
		return
	}
	d.processRequests[requestID] = action.ID
	d.mu.Unlock()
}

// authorizeTokenAccess gates the token operations to the target user, root
// and the root group, regardless of catalog mode.
func (d *Dispatcher) authorizeTokenAccess(executor types.UserInfo, resourceName, operation string) error {
	if executor.IsUser(resourceName) || executor.IsUser(types.RootUser) || executor.HasGroup(types.RootGroup) {
		return nil
	}
	return types.NewError(types.ErrUnauthorized,
		"%s. User %q is not allowed to %s authentication tokens with resource name %q.",
		types.ErrUnauthorized.String(), executor.Name, operation, resourceName)
}

// resolveRightsUpdate parses the owner or mode payload, merges it with the
// entry's current rights and applies the update.
func (d *Dispatcher) resolveRightsUpdate(action types.Action, ownerUpdate bool,
	update func(name string, ownerUpdate bool, owner types.AccessOwner, mode types.AccessMode) (interface{}, error)) {
	var (
		owner types.AccessOwner
		mode  types.AccessMode
	)
	if ownerUpdate {
		if err := json.Unmarshal(action.Data, &owner); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid access owner: %v", err)), types.ErrInvalidInput))
			return
		}
	} else {
		if err := json.Unmarshal(action.Data, &mode); err != nil {
			d.emit(action.Reply([]byte(fmt.Sprintf("Invalid access mode: %v", err)), types.ErrInvalidInput))
			return
		}
	}
	result, err := update(action.ResourceName, ownerUpdate, owner, mode)
	if err != nil {
		d.emitError(action, err)
		return
	}
	d.emit(d.marshalReply(action, result))
}

func (d *Dispatcher) updateActionRights(name string, ownerUpdate bool, owner types.AccessOwner, mode types.AccessMode) (interface{}, error) {
	info := d.actions.FindAction(name)
	if info.Name == "" {
		return nil, types.NewError(types.ErrInvalidInput, "Action name %q does not exist", name)
	}
	rights := info.AccessRights
	if ownerUpdate {
		rights.Owner = owner
	} else {
		rights.Mode = mode
	}
	updated, err := d.actions.UpdateAccessRights(name, rights)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (d *Dispatcher) updateProcessRights(name string, ownerUpdate bool, owner types.AccessOwner, mode types.AccessMode) (interface{}, error) {
	info := d.processes.FindProcess(name)
	if info.Name == "" {
		return nil, types.NewError(types.ErrInvalidInput, "Process name %q does not exist", name)
	}
	rights := info.AccessRights
	if ownerUpdate {
		rights.Owner = owner
	} else {
		rights.Mode = mode
	}
	updated, err := d.processes.UpdateAccessRights(name, rights)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// statistics builds the general/dateTime/services document.
func (d *Dispatcher) statistics(action types.Action) types.Action {
	now := time.Now().UTC()
	elapsed := now.Sub(d.startTime)
	days := int(elapsed.Hours()) / 24
	remainder := elapsed - time.Duration(days)*24*time.Hour

	doc := map[string]interface{}{
		"general": map[string]interface{}{
			"version": d.version,
		},
		"dateTime": map[string]interface{}{
			"start":   d.startTime.Format(time.RFC3339),
			"current": now.Format(time.RFC3339),
			"upTime": fmt.Sprintf("%d days, %02d:%02d:%02d", days,
				int(remainder.Hours()), int(remainder.Minutes())%60, int(remainder.Seconds())%60),
		},
		"services": []map[string]interface{}{
			d.files.Statistics(),
			d.actions.Statistics(),
			d.processes.Statistics(),
			d.reports.Statistics(),
			d.directory.Statistics(),
			d.mailer.Statistics(),
		},
	}
	return d.marshalReply(action, doc)
}

func (d *Dispatcher) onFileRequestCompleted(requestID uuid.UUID, object *types.FileObject) {
	logger := log.WithRequestID(d.logger, requestID.String())
	logger.Info().
		Str("error", object.ErrorType.String()).
		Msg("File request completed")

	d.mu.Lock()
	actionID, ok := d.fileRequests[requestID]
	if ok {
		delete(d.fileRequests, requestID)
	}
	d.mu.Unlock()

	if !ok {
		logger.Warn().Msg("File request not found among registered requests")
		return
	}

	reply := types.Action{
		ID:           actionID,
		Executor:     object.Info.AccessRights.Owner.User,
		ResourceName: object.Info.Path,
		ResourceID:   object.Info.ID,
		Data:         object.Content,
		ErrorType:    object.ErrorType,
	}
	d.emit(reply)
}

func (d *Dispatcher) onProcessRequestCompleted(requestID uuid.UUID, result types.ProcessResult) {
	logger := log.WithRequestID(d.logger, requestID.String())
	logger.Info().
		Str("error", result.ErrorType.String()).
		Msg("Process request completed")

	d.mu.Lock()
	actionID, ok := d.processRequests[requestID]
	if ok {
		delete(d.processRequests, requestID)
	}
	d.mu.Unlock()

	if !ok {
		logger.Warn().Msg("Process request not found among registered requests")
		return
	}

	message := result.Output
	if result.ErrorType != types.ErrNone {
		message = result.Errors
	}
	response := types.ProcessResponse{
		Request: result.Request,
		Message: string(message),
	}
	data, err := json.Marshal(response)
	if err != nil {
		data = message
	}

	d.processes.Finalize(requestID)
	d.emit(types.Action{
		ID:        actionID,
		Data:      data,
		ErrorType: result.ErrorType,
	})
}

func (d *Dispatcher) marshalReply(action types.Action, payload interface{}) types.Action {
	data, err := json.Marshal(payload)
	if err != nil {
		return action.Reply([]byte(fmt.Sprintf("Failed to serialize reply: %v", err)), types.ErrUnknown)
	}
	return action.Reply(data, types.ErrNone)
}

func (d *Dispatcher) emitError(action types.Action, err error) {
	d.emit(action.Reply([]byte(err.Error()), types.TypeOf(err)))
}

func (d *Dispatcher) emit(reply types.Action) {
	metrics.ActionsResolved.WithLabelValues(reply.Name, reply.ErrorType.String()).Inc()
	if d.resolved != nil {
		d.resolved(reply)
	}
}
