/*
Package access implements the rwx authorization policy consulted by every
subsystem.

The policy is one pure function over (user, rights, mode) with no state
and no error path, which is what lets files, actions and processes all
share it without coupling.

# Decision Table

For a requested read, write or execute:

	root user               -> allow
	member of group root    -> allow
	user == rights owner    -> allow iff owner mask contains the mode
	member of owner group   -> allow iff group mask contains the mode
	anyone else             -> allow iff other mask contains the mode

ModeNone is different in kind: it is an ownership check, used for
operations that only the owner may perform (changing a file's access
mode). Only root and the owning user pass; notably, root group membership
does not.

An out-of-range mode is a programming bug and simply fails every mask
comparison.
*/
package access
