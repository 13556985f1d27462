package types

import (
	"github.com/google/uuid"
)

// Action names form a closed set; each maps to exactly one handler.
const (
	ActionTest = "test"

	ActionFileList              = "file.list"
	ActionFileInfo              = "file.info"
	ActionFileUpload            = "file.upload"
	ActionFileUpdate            = "file.update"
	ActionFileUpdateAccessOwner = "file.update-access-owner"
	ActionFileUpdateAccessMode  = "file.update-access-mode"
	ActionFileUpdateVersion     = "file.update-version"
	ActionFileUpdateTags        = "file.update-tags"
	ActionFileDownload          = "file.download"
	ActionFileRemove            = "file.remove"

	ActionUserList     = "user.list"
	ActionUserInfo     = "user.info"
	ActionUserAdd      = "user.add"
	ActionUserUpdate   = "user.update"
	ActionUserRemove   = "user.remove"
	ActionUserRegister = "user.register"

	ActionUserTokenList     = "user.tokens.list"
	ActionUserTokenGenerate = "user.token.generate"
	ActionUserTokenRemove   = "user.token.remove"

	ActionGroupList   = "group.list"
	ActionGroupInfo   = "group.info"
	ActionGroupAdd    = "group.add"
	ActionGroupRemove = "group.remove"

	ActionList              = "action.list"
	ActionUpdateAccessOwner = "action.update-access-owner"
	ActionUpdateAccessMode  = "action.update-access-mode"

	ActionProcessList              = "process.list"
	ActionProcess                  = "process"
	ActionProcessUpdateAccessOwner = "process.update-access-owner"
	ActionProcessUpdateAccessMode  = "process.update-access-mode"

	ActionStatistics   = "statistics"
	ActionStop         = "stop"
	ActionReportSubmit = "report.submit"
)

// ActionNames returns the closed action namespace in a stable order.
func ActionNames() []string {
	return []string{
		ActionTest,
		ActionFileList,
		ActionFileInfo,
		ActionFileUpload,
		ActionFileUpdate,
		ActionFileUpdateAccessOwner,
		ActionFileUpdateAccessMode,
		ActionFileUpdateVersion,
		ActionFileUpdateTags,
		ActionFileDownload,
		ActionFileRemove,
		ActionUserList,
		ActionUserInfo,
		ActionUserAdd,
		ActionUserUpdate,
		ActionUserRemove,
		ActionUserRegister,
		ActionUserTokenList,
		ActionUserTokenGenerate,
		ActionUserTokenRemove,
		ActionGroupList,
		ActionGroupInfo,
		ActionGroupAdd,
		ActionGroupRemove,
		ActionList,
		ActionUpdateAccessOwner,
		ActionUpdateAccessMode,
		ActionProcessList,
		ActionProcess,
		ActionProcessUpdateAccessOwner,
		ActionProcessUpdateAccessMode,
		ActionStatistics,
		ActionStop,
		ActionReportSubmit,
	}
}

// IsActionName reports whether name belongs to the closed action set.
func IsActionName(name string) bool {
	for _, n := range ActionNames() {
		if n == name {
			return true
		}
	}
	return false
}

// Action is the typed unit of work carried on the wire. The same structure
// carries the resolved reply, with Data holding the payload and ErrorType
// the outcome.
type Action struct {
	ID           uuid.UUID
	Executor     string
	Name         string
	ResourceName string
	ResourceID   uuid.UUID
	Data         []byte
	ErrorType    ErrorType
}

// Reply derives a resolved reply from an inbound action.
func (a Action) Reply(data []byte, errorType ErrorType) Action {
	reply := a
	reply.Data = data
	reply.ErrorType = errorType
	return reply
}

// ActionInfo is a catalog entry binding an action name to access rights.
type ActionInfo struct {
	Name         string       `json:"name"`
	AccessRights AccessRights `json:"accessRights"`
}
