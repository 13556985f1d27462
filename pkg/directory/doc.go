/*
Package directory is the identity substrate: users, groups and one-shot
auth tokens.

Every other service consults the directory, directly or through the access
policy: the dispatcher resolves executors here, the file service validates
proposed owners here, and the public listener validates bearer tokens
here.

# Data Model

	User   {name, groupNames}   name unique, every group must exist
	Group  {name}               name unique
	Token  {id, resourceName,   id unique, (resourceName, content)
	        content,            pair unique
	        validityDate}

A fresh directory is seeded with the reserved identities:

	users:   root (in group root), guest (in group guest)
	groups:  root, guest, users

# Persistence

The whole directory is one JSON document:

	{"users": [...], "groups": [...], "tokens": [...]}

It is rewritten atomically (write-temp + rename) after every mutation. A
write failure is logged, never surfaced to the caller: the in-memory state
is authoritative and the next mutation retries the write. Flush forces a
rewrite during shutdown.

# One-Shot Tokens

ValidateToken is the single authentication path for bearer credentials:

	valid := dir.ValidateToken(resourceName, content)

The matching token - if one exists - is removed in all cases, valid,
expired or not. A credential can therefore be probed at most once, which
closes the replay window and makes a failed guess cost the attacker the
token it guessed at.

# Group-Removal Cascade

Removing a group drops it from every member's group list in the same
mutation, and each affected user is announced through the user-changed
callback:

	dir.OnUserChanged(func(u types.UserInfo) { ... })

Wiring is static at startup; there is no dynamic observer registration.

# Concurrency

All state sits behind one mutex. Mutations arrive from the dispatcher
goroutines; token validation arrives from listener goroutines; both paths
serialize on the same lock, and accessors hand out copies rather than
internal slices.

# See Also

  - pkg/access - the policy evaluated against directory identities
  - pkg/server - consumes ValidateToken for public bearer requests
  - pkg/dispatcher - drives every other directory operation
*/
package directory
