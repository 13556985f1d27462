/*
Package types defines the domain types shared across the server.

Everything that crosses a package boundary lives here: access rights and
identities, auth tokens, file metadata, the wire-level Action, process
catalog records, and the error taxonomy carried in every reply.

# The Action

An Action is the typed unit of work on the wire: id, executor, name,
optional resource name and id, payload bytes, and - on the reply - the
categorical error kind. Action names form a closed set (ActionNames);
every name maps to exactly one dispatcher handler.

# Errors

The taxonomy is the eleven ErrorType kinds from None through Unknown.
Error pairs a kind with a human-readable diagnostic; TypeOf coerces any
error back to its kind (None for nil, Unknown for untyped errors), which
is how handler failures become reply headers without stack traces ever
crossing the wire.

# Validation Domains

The validation rules that multiple packages depend on are centralized
here rather than re-derived per caller:

	names   ^[a-zA-Z0-9_.-]+$ for users and groups
	paths   relative, UTF-8, at most 4096 bytes, no ".." component
	tags    ^[a-zA-Z0-9_-]+$, at most 64 bytes each, at most 8 per file
	tokens  Base64 of 32 random bytes, one-month default validity

FileInfo additionally carries a fixed-order line serialization
(IndexLine / FileInfoFromIndexLine) used by the store index file.
*/
package types
