/*
Package filestore is the single source of truth for file content and
metadata.

The service owns a directory of blobs named by uuid, an in-memory index
mapping file id to metadata, and the accounting that enforces per-file and
whole-store size limits. All of it is mutated by exactly one worker
goroutine, which gives per-store serializability without any distributed
locking.

# Architecture

Producers enqueue tasks under the queue mutex; the worker drains them in
FIFO order and reports each outcome through the completion callback:

	┌──────────────┐   RequestStoreFile(...)    ┌──────────────────┐
	│  Dispatcher  │───────────────────────────▶│  Task queue      │
	│ (any number  │   returns request id       │  (mutex + cond,  │
	│of goroutines)│                            │   FIFO)          │
	└──────────────┘                            └────────┬─────────┘
	                                                     │ wake on enqueue
	                                                     ▼
	                                            ┌──────────────────┐
	                                            │  Worker goroutine│
	                                            │  1. dequeue      │
	                                            │  2. authorize    │
	                                            │  3. touch blobs  │
	                                            │  4. update index │
	                                            │  5. rewrite      │
	                                            │     index.txt    │
	                                            │  6. completion   │
	                                            │     callback     │
	                                            └──────────────────┘

Tasks for the same file id and tasks for different file ids are both
handled strictly in submission order; there is only one worker.

# Task Set

Ten task kinds cover the file lifecycle:

	ListFiles              read-only   per-user filtered metadata listing
	FileInfo               read-only   single metadata record
	StoreFile              mutating    create blob + index entry
	UpdateFile             mutating    replace content and path
	UpdateFileAccessOwner  mutating    replace owner, keep mode
	UpdateFileAccessMode   mutating    replace mode (ownership gated)
	UpdateFileVersion      mutating    replace version string
	UpdateFileTags         mutating    replace tags (count + syntax checked)
	RetrieveFile           read-only   blob content
	RemoveFile             mutating    delete blob + index entry

Each Request* method allocates a fresh request id and returns immediately;
the outcome arrives later on the completion callback with that id, the
result payload in the object's Content, and the categorical error kind in
its ErrorType.

# Authorization

Every task consults the access policy against the executor:

  - reads (ListFiles, FileInfo, RetrieveFile) require the read mask
  - writes (StoreFile, UpdateFile, UpdateFileVersion, UpdateFileTags,
    RemoveFile) require the write mask against the current rights -
    StoreFile against the proposed rights, since no entry exists yet
  - UpdateFileAccessMode is an ownership check: only root or the owning
    user may change a file's mode
  - UpdateFileAccessOwner validates that the proposed owner names an
    existing user and group; authorization for the operation itself is
    enforced one layer up, at the action catalog

RemoveFile authorizes before the entry leaves the index, so a denied
request cannot disturb the store.

# Size Accounting

totalSize tracks the byte sum of every indexed file and always equals the
sum of Size over the index at rest:

	StoreFile   totalSize += size        (rejected if it would exceed
	                                      MaxStoreSize, or if the single
	                                      file exceeds MaxFileSize)
	UpdateFile  totalSize += new - old
	RemoveFile  totalSize -= size

Size and MD5 checksum are re-read from disk after every write, so the
index records what the filesystem actually holds, not what the request
claimed.

# Index Persistence

The index lives in <store>/index.txt, one serialized record per line in a
fixed field order, rewritten atomically (write-temp + rename) after every
mutating task. Two deliberate asymmetries:

  - an index write failure is logged but the task still succeeds: the blob
    is already on disk and the next mutation retries the write
  - a crash between blob write and index write can orphan a blob; orphans
    are tolerated and bounded to the final task before the crash

At startup a missing index file yields an empty index with totalSize zero;
otherwise every line is parsed and totalSize recomputed from the entries.

# Usage

	files, err := filestore.New(filestore.Settings{
		StorePath:    cfg.FileStore,
		MaxFileSize:  cfg.FileStoreMaxFileSize,
		MaxStoreSize: cfg.FileStoreMaxSize,
	}, dir)
	if err != nil {
		return err
	}
	files.OnCompleted(onFileRequestCompleted)
	files.Start()
	defer files.Stop()

	object := &types.FileObject{...}
	requestID := files.RequestStoreFile(executor, object)
	// onFileRequestCompleted(requestID, object) fires when done.

Stop flips the stopping flag and wakes the worker; tasks already queued
are still performed before the worker exits, and nothing that has started
is cancelled.

# Observability

Statistics returns the service's counters and value series (bytes stored,
updated, retrieved, removed) plus the index size and byte figures for the
statistics action. The Prometheus side exports the same figures as gauges
(store files, store bytes) and a per-task counter labeled by task kind and
error type.

# See Also

  - pkg/access - the rwx policy every task consults
  - pkg/dispatcher - the producer and the consumer of completions
  - pkg/types - FileInfo, FileObject and the index line format
*/
package filestore
