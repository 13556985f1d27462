package filestore

import (
	"github.com/google/uuid"

	"github.com/Range-Software/range-cloud/pkg/types"
)

// taskAction enumerates the file service tasks.
type taskAction int

const (
	taskListFiles taskAction = iota
	taskFileInfo
	taskStoreFile
	taskUpdateFile
	taskUpdateFileAccessOwner
	taskUpdateFileAccessMode
	taskUpdateFileVersion
	taskUpdateFileTags
	taskRetrieveFile
	taskRemoveFile
)

var taskActionNames = map[taskAction]string{
	taskListFiles:             "ListFiles",
	taskFileInfo:              "FileInfo",
	taskStoreFile:             "StoreFile",
	taskUpdateFile:            "UpdateFile",
	taskUpdateFileAccessOwner: "UpdateFileAccessOwner",
	taskUpdateFileAccessMode:  "UpdateFileAccessMode",
	taskUpdateFileVersion:     "UpdateFileVersion",
	taskUpdateFileTags:        "UpdateFileTags",
	taskRetrieveFile:          "RetrieveFile",
	taskRemoveFile:            "RemoveFile",
}

func (a taskAction) String() string {
	if name, ok := taskActionNames[a]; ok {
		return name
	}
	return "Unknown"
}

// mutating reports whether the task changes the index and therefore
// requires an index rewrite.
func (a taskAction) mutating() bool {
	switch a {
	case taskListFiles, taskFileInfo, taskRetrieveFile:
		return false
	}
	return true
}

// task is one unit of work for the file service worker.
type task struct {
	id       uuid.UUID
	action   taskAction
	executor types.UserInfo
	object   *types.FileObject
}
