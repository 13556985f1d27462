package filestore

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/access"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/stats"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// Settings configures the file service.
type Settings struct {
	// StorePath is the directory holding the blobs and the index file.
	StorePath string

	// MaxFileSize bounds the size of a single file; zero disables the check.
	MaxFileSize int64

	// MaxStoreSize bounds the total store size; zero disables the check.
	MaxStoreSize int64
}

// Directory is the read-only view of the user directory the file service
// consults when validating access owners.
type Directory interface {
	ContainsUser(name string) bool
	ContainsGroup(name string) bool
}

// Service owns the blob store and its index. All mutation happens on one
// worker goroutine; producers enqueue tasks under the queue mutex and are
// notified through the completion callback.
type Service struct {
	settings  Settings
	directory Directory
	logger    zerolog.Logger
	stats     *stats.Service

	storePath string
	indexFile string
	index     *index
	totalSize int64

	queueMu  sync.Mutex
	queueCond *sync.Cond
	queue    []task
	stopping bool
	doneCh   chan struct{}

	completed func(requestID uuid.UUID, object *types.FileObject)

	snapMu    sync.Mutex
	snapCount int
	snapBytes int64
}

// New creates the file service, loading the index when one exists.
func New(settings Settings, dir Directory) (*Service, error) {
	s := &Service{
		settings:  settings,
		directory: dir,
		logger:    log.WithComponent("filestore"),
		stats:     stats.NewService("fileService"),
		index:     newIndex(),
		doneCh:    make(chan struct{}),
	}
	s.queueCond = sync.NewCond(&s.queueMu)

	if err := os.MkdirAll(settings.StorePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store path %q: %w", settings.StorePath, err)
	}
	s.storePath = settings.StorePath
	s.indexFile = filepath.Join(settings.StorePath, "index.txt")

	s.logger.Info().Str("store", s.storePath).Msg("Reading index file")
	if err := s.index.readFromFile(s.indexFile); err != nil {
		return nil, err
	}
	s.totalSize = s.index.storeSize()
	s.updateSnapshot()

	return s, nil
}

// OnCompleted registers the completion callback. Wiring is static at
// startup; the callback runs on the worker goroutine.
func (s *Service) OnCompleted(fn func(requestID uuid.UUID, object *types.FileObject)) {
	s.completed = fn
}

// Start launches the worker goroutine.
func (s *Service) Start() {
	go s.run()
}

// Stop signals the worker to finish the queued tasks and waits for it.
func (s *Service) Stop() {
	s.logger.Info().Msg("Signal service to stop")
	s.queueMu.Lock()
	s.stopping = true
	s.queueMu.Unlock()
	s.queueCond.Signal()
	<-s.doneCh
	s.logger.Info().Msg("Service has been stopped")
}

// TotalSize returns the accounted store size in bytes.
func (s *Service) TotalSize() int64 {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snapBytes
}

// Request enqueuers. Each returns the generated request id; the outcome
// arrives through the completion callback.

func (s *Service) RequestListFiles(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskListFiles, executor, object)
}

func (s *Service) RequestFileInfo(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskFileInfo, executor, object)
}

func (s *Service) RequestStoreFile(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskStoreFile, executor, object)
}

func (s *Service) RequestUpdateFile(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskUpdateFile, executor, object)
}

func (s *Service) RequestUpdateFileAccessOwner(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskUpdateFileAccessOwner, executor, object)
}

func (s *Service) RequestUpdateFileAccessMode(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskUpdateFileAccessMode, executor, object)
}

func (s *Service) RequestUpdateFileVersion(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskUpdateFileVersion, executor, object)
}

func (s *Service) RequestUpdateFileTags(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskUpdateFileTags, executor, object)
}

func (s *Service) RequestRetrieveFile(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskRetrieveFile, executor, object)
}

func (s *Service) RequestRemoveFile(executor types.UserInfo, object *types.FileObject) uuid.UUID {
	return s.enqueue(taskRemoveFile, executor, object)
}

func (s *Service) enqueue(action taskAction, executor types.UserInfo, object *types.FileObject) uuid.UUID {
	t := task{
		id:       uuid.New(),
		action:   action,
		executor: executor,
		object:   object,
	}
	s.logger.Debug().
		Str("request_id", t.id.String()).
		Str("task", action.String()).
		Str("executor", executor.Name).
		Str("object_id", object.Info.ID.String()).
		Msg("Enqueueing task")
	s.queueMu.Lock()
	s.queue = append(s.queue, t)
	s.queueMu.Unlock()
	s.queueCond.Signal()
	return t.id
}

// Statistics returns the service statistics snapshot including the index
// figures.
func (s *Service) Statistics() map[string]interface{} {
	s.snapMu.Lock()
	count := s.snapCount
	bytes := s.snapBytes
	s.snapMu.Unlock()

	doc := s.stats.Snapshot()
	doc["index"] = map[string]interface{}{
		"size":  count,
		"bytes": bytes,
	}
	return doc
}

// run drains the task queue until stopped. Tasks still queued when the stop
// signal arrives are completed before the worker exits; nothing started is
// cancelled.
func (s *Service) run() {
	defer close(s.doneCh)
	for {
		s.queueMu.Lock()
		for len(s.queue) == 0 && !s.stopping {
			s.queueCond.Wait()
		}
		if len(s.queue) == 0 && s.stopping {
			s.queueMu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.perform(t)
	}
}

func (s *Service) perform(t task) {
	var (
		result    []byte
		errorType types.ErrorType
	)

	switch t.action {
	case taskListFiles:
		result, errorType = s.listFiles(t.executor)
	case taskFileInfo:
		result, errorType = s.fileInfo(t.executor, t.object.Info.ID)
	case taskStoreFile:
		result, errorType = s.storeFile(t.executor, t.object)
	case taskUpdateFile:
		result, errorType = s.updateFile(t.executor, t.object)
	case taskUpdateFileAccessOwner:
		result, errorType = s.updateFileAccessOwner(t.executor, t.object)
	case taskUpdateFileAccessMode:
		result, errorType = s.updateFileAccessMode(t.executor, t.object)
	case taskUpdateFileVersion:
		result, errorType = s.updateFileVersion(t.executor, t.object)
	case taskUpdateFileTags:
		result, errorType = s.updateFileTags(t.executor, t.object)
	case taskRetrieveFile:
		result, errorType = s.retrieveFile(t.executor, t.object)
	case taskRemoveFile:
		result, errorType = s.removeFile(t.executor, t.object.Info.ID)
	default:
		s.logger.Error().Str("task", t.action.String()).Msg("Unknown task")
		errorType = types.ErrUnknown
	}

	t.object.Content = result
	t.object.ErrorType = errorType

	if t.action.mutating() {
		s.logger.Info().Str("file", s.indexFile).Msg("Writing index file")
		if err := s.index.writeToFile(s.indexFile); err != nil {
			s.logger.Error().Err(err).Str("file", s.indexFile).Msg("Failed to write index file")
		}
		s.updateSnapshot()
	}

	metrics.FileTasksTotal.WithLabelValues(t.action.String(), errorType.String()).Inc()

	if s.completed != nil {
		s.completed(t.id, t.object)
	}
}

func (s *Service) updateSnapshot() {
	s.snapMu.Lock()
	s.snapCount = s.index.size()
	s.snapBytes = s.totalSize
	s.snapMu.Unlock()
	metrics.StoreFiles.Set(float64(s.index.size()))
	metrics.StoreBytes.Set(float64(s.totalSize))
}

func (s *Service) blobPath(id uuid.UUID) string {
	return filepath.Join(s.storePath, id.String())
}

func (s *Service) listFiles(executor types.UserInfo) ([]byte, types.ErrorType) {
	files := s.index.list(func(info types.FileInfo) bool {
		return access.Authorize(executor, info.AccessRights, types.ModeRead)
	})

	doc := map[string]interface{}{"files": files}
	data, err := json.Marshal(doc)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file list: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) fileInfo(executor types.UserInfo, id uuid.UUID) ([]byte, types.ErrorType) {
	if !s.index.exists(id) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", id)
	}
	info := s.index.info(id)
	if !access.Authorize(executor, info.AccessRights, types.ModeRead) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to retrieve file id=%q", executor.Name, id)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) storeFile(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !access.Authorize(executor, object.Info.AccessRights, types.ModeWrite) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to store file id=%q", executor.Name, object.Info.ID)
	}
	if s.settings.MaxFileSize > 0 && int64(len(object.Content)) > s.settings.MaxFileSize {
		return s.fail(types.ErrInvalidInput, "Invalid file size \"%d bytes\" (max: \"%d bytes\")", int64(len(object.Content)), s.settings.MaxFileSize)
	}
	if s.settings.MaxStoreSize > 0 && int64(len(object.Content))+s.totalSize > s.settings.MaxStoreSize {
		return s.fail(types.ErrInvalidInput, "Invalid file size \"%d bytes\". File store is full.", int64(len(object.Content)))
	}
	if !types.IsPathValid(object.Info.Path) {
		return s.fail(types.ErrInvalidInput, "Invalid path %q", object.Info.Path)
	}

	info := object.Info
	now := time.Now().UTC().Unix()
	info.CreatedAt = now
	info.UpdatedAt = now

	if err := os.WriteFile(s.blobPath(info.ID), object.Content, 0o600); err != nil {
		return s.fail(types.ErrWriteFile, "Failed to write file id=%q", info.ID)
	}

	size, sum, err := s.readBack(info.ID)
	if err != nil {
		return s.fail(types.ErrReadFile, "Failed to read back file id=%q", info.ID)
	}
	info.Size = size
	info.MD5Checksum = sum

	s.index.register(info)
	s.totalSize += info.Size
	s.stats.RecordValue("fileSizeStore", float64(info.Size))

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) updateFile(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	info := s.index.info(object.Info.ID)
	if !access.Authorize(executor, info.AccessRights, types.ModeWrite) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to update file id=%q", executor.Name, info.ID)
	}
	if !types.IsPathValid(object.Info.Path) {
		return s.fail(types.ErrInvalidInput, "Invalid path %q", object.Info.Path)
	}

	info.Path = object.Info.Path
	info.UpdatedAt = time.Now().UTC().Unix()

	if err := os.WriteFile(s.blobPath(info.ID), object.Content, 0o600); err != nil {
		return s.fail(types.ErrWriteFile, "Failed to write file id=%q", info.ID)
	}

	oldSize := info.Size
	size, sum, err := s.readBack(info.ID)
	if err != nil {
		return s.fail(types.ErrReadFile, "Failed to read back file id=%q", info.ID)
	}
	info.Size = size
	info.MD5Checksum = sum

	s.index.register(info)
	s.totalSize += info.Size - oldSize
	s.stats.RecordValue("fileSizeUpdate", float64(info.Size))

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

// updateFileAccessOwner validates the proposed owner against the directory
// and replaces it, keeping the mode. Authorization is enforced at the
// action catalog layer; no additional check against the existing rights
// happens here.
func (s *Service) updateFileAccessOwner(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	owner := object.Info.AccessRights.Owner
	if !owner.IsValid() {
		return s.fail(types.ErrInvalidInput, "Invalid access owner")
	}
	if !s.directory.ContainsUser(owner.User) {
		return s.fail(types.ErrInvalidInput, "Invalid access owner user %q", owner.User)
	}
	if !s.directory.ContainsGroup(owner.Group) {
		return s.fail(types.ErrInvalidInput, "Invalid access owner group %q", owner.Group)
	}

	info := s.index.info(object.Info.ID)
	info.AccessRights.Owner = owner
	s.index.register(info)

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

// updateFileAccessMode is an ownership-gated operation: only root or the
// file's owner may change the mode.
func (s *Service) updateFileAccessMode(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	info := s.index.info(object.Info.ID)
	if !access.Authorize(executor, info.AccessRights, types.ModeNone) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to change access mode of file id=%q", executor.Name, info.ID)
	}
	mode := object.Info.AccessRights.Mode
	if !mode.IsValid() {
		return s.fail(types.ErrInvalidInput, "Invalid access mode")
	}

	info.AccessRights.Mode = mode
	s.index.register(info)

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) updateFileVersion(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	info := s.index.info(object.Info.ID)
	if !access.Authorize(executor, info.AccessRights, types.ModeWrite) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to change version of file id=%q", executor.Name, info.ID)
	}

	info.Version = object.Info.Version
	s.index.register(info)

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) updateFileTags(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	info := s.index.info(object.Info.ID)
	if !access.Authorize(executor, info.AccessRights, types.ModeWrite) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to change tags of file id=%q", executor.Name, info.ID)
	}

	tags := object.Info.Tags
	if len(tags) > types.MaxNumTags {
		return s.fail(types.ErrInvalidInput, "Invalid number of tags \"%d\" (max=\"%d\")", len(tags), types.MaxNumTags)
	}
	for _, tag := range tags {
		if !types.IsTagValid(tag) {
			return s.fail(types.ErrInvalidInput, "Invalid tag %q", tag)
		}
	}

	info.Tags = tags
	s.index.register(info)

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

func (s *Service) retrieveFile(executor types.UserInfo, object *types.FileObject) ([]byte, types.ErrorType) {
	if !s.index.exists(object.Info.ID) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", object.Info.ID)
	}
	object.Info = s.index.info(object.Info.ID)
	if !access.Authorize(executor, object.Info.AccessRights, types.ModeRead) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to retrieve file id=%q", executor.Name, object.Info.ID)
	}

	content, err := os.ReadFile(s.blobPath(object.Info.ID))
	if err != nil {
		return s.fail(types.ErrReadFile, "Failed to read file id=%q", object.Info.ID)
	}
	s.stats.RecordValue("fileSizeRetrieve", float64(object.Info.Size))
	return content, types.ErrNone
}

// removeFile authorizes against the current rights before the entry leaves
// the index, so a denied request leaves the store untouched.
func (s *Service) removeFile(executor types.UserInfo, id uuid.UUID) ([]byte, types.ErrorType) {
	if !s.index.exists(id) {
		return s.fail(types.ErrInvalidInput, "File object %q does not exist", id)
	}
	info := s.index.info(id)
	if !access.Authorize(executor, info.AccessRights, types.ModeWrite) {
		return s.fail(types.ErrUnauthorized, "User %q is not authorized to remove file id=%q", executor.Name, id)
	}

	s.index.unregister(id)
	s.totalSize -= info.Size

	if err := os.Remove(s.blobPath(id)); err != nil {
		return s.fail(types.ErrWriteFile, "Failed to remove file id=%q", id)
	}

	s.stats.RecordValue("fileSizeRemove", float64(info.Size))

	data, err := json.Marshal(info)
	if err != nil {
		return s.fail(types.ErrUnknown, "Failed to serialize file info: %v", err)
	}
	return data, types.ErrNone
}

// readBack re-reads a blob from disk for its authoritative size and MD5.
func (s *Service) readBack(id uuid.UUID) (int64, string, error) {
	content, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		return 0, "", err
	}
	sum := md5.Sum(content)
	return int64(len(content)), hex.EncodeToString(sum[:]), nil
}

func (s *Service) fail(t types.ErrorType, format string, args ...interface{}) ([]byte, types.ErrorType) {
	message := fmt.Sprintf(format, args...)
	s.logger.Error().Str("store", s.storePath).Msg(message)
	return []byte(message), t
}
