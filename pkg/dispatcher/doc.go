/*
Package dispatcher correlates inbound actions with resolved replies.

The dispatcher is the central router of the server. Every message that
arrives on either listener becomes exactly one Action, and every Action
produces exactly one resolved reply, whether the work completes inline on
the calling goroutine or asynchronously inside the file service or a child
process.

# Architecture

An action passes through three fixed stages before it reaches a handler:

	┌────────────────────────────────────────────────────────────┐
	│                    ResolveAction(action, from)             │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Resolve executor (empty executor => guest)             │
	│  2. Look up executor in the directory                      │
	│     unknown user           => InvalidInput reply           │
	│  3. Authorize against the action catalog (execute mask)    │
	│     not authorized         => Unauthorized reply           │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	    ┌────────────┼──────────────────┐
	    │            │                  │
	    ▼            ▼                  ▼
	┌──────────┐ ┌──────────────┐ ┌──────────────┐
	│Synchronous│ │ File actions │ │Process action│
	│ handlers  │ │ (10 kinds)   │ │              │
	└────┬──────┘ └──────┬───────┘ └──────┬───────┘
	     │               │                │
	     │        enqueue task,     submit child,
	     │        record            record
	     │        fileRequests      processRequests
	     │        [reqID]=actionID  [reqID]=actionID
	     │               │                │
	     ▼               ▼                ▼
	  reply now     reply on task    reply on child
	                completion       exit

Synchronous handlers cover identity and catalog administration (users,
groups, tokens, action rights, process rights), statistics, report
submission, stop, and the connectivity test. They compute their reply on
the calling goroutine and emit it before ResolveAction returns.

File and process actions are handed to their owning service. The generated
request id is recorded in a correlation map before the service can
complete, and the completion callback translates the service result back
into a reply addressed by the original action id.

# Correlation Contract

fileRequests and processRequests map request id to action id. Entries obey
a strict lifecycle:

  - created under the dispatcher mutex before the service may observe the
    request id
  - removed exactly once, by the completion callback
  - never leaked: memory is bounded by the number of in-flight requests

Registration and submission happen under the same mutex acquisition, so a
completion callback that fires immediately still blocks until the mapping
exists. PendingRequests reports the combined size of both maps; the server
polls it to zero during shutdown.

# Reply Delivery

Replies leave through a single OnResolved callback, wired once at startup:

	disp := dispatcher.New(dir, actions, processes, files, reports, mail, version)
	disp.OnResolved(hub.Deliver)
	disp.OnStop(cancel)

The callback runs on whichever goroutine produced the reply: the caller's
for synchronous actions, the file service worker for file actions, the
child watcher for process actions. Consumers that need single-threaded
delivery (the HTTP reply hub does not) must serialize themselves.

A resolved stop action emits its reply first and then invokes the OnStop
trigger, so the client that asked for the shutdown still receives its
confirmation.

# Token Operations

user.tokens.list, user.token.generate and user.token.remove carry an extra
gate on top of the catalog check: the executor must be the target user
itself, root, or a member of the root group. The catalog may open these
actions to the users group, but one user can never mint or inspect another
user's tokens.

Token generation also queues a notification mail to the resource name with
the new token content and its validity date.

# Error Handling

Handler failures never escape as Go errors. Every failure is folded into
the reply:

  - the categorical kind comes from types.TypeOf on the handler error
  - the payload is the human-readable diagnostic
  - unknown action names produce an InvalidInput reply rather than silence,
    so a misbehaving client cannot hang waiting for an answer

The process action is special: its failure replies carry a JSON
ProcessResponse echoing the request, so clients can match a refusal to the
submission that caused it.

# Statistics

The statistics action assembles one JSON document from every service:

	{
	  "general":  {"version": ...},
	  "dateTime": {"start": ..., "current": ..., "upTime": "N days, HH:MM:SS"},
	  "services": [fileService, actionService, processService,
	               reportService, userService, mailerService]
	}

Each entry is the owning service's stats snapshot; the dispatcher only
aggregates.

# Concurrency

ResolveAction may be called from any number of listener goroutines. The
dispatcher itself holds only the correlation maps under its mutex; all
other state lives in the services, each of which guards its own. The
dispatcher never blocks on I/O: file work is queued, process work is
spawned, and synchronous handlers touch in-memory state and small JSON
documents only.

# See Also

  - pkg/filestore - the serialized file task engine behind the file actions
  - pkg/process - catalog and child lifecycle behind the process action
  - pkg/directory - users, groups and tokens
  - pkg/catalog - per-action access rights
  - pkg/server - the listeners that feed ResolveAction and consume replies
*/
package dispatcher
