/*
Package catalog persists the per-action access rights and answers the
authorization question the dispatcher asks for every inbound action.

Each entry binds one action name to an owner and an rwx mode; the
execute bit is the one that matters, since "may this user run this
action" is evaluated as an execute check against the entry.

# Default Policy

On first boot the catalog file is absent and a default policy is
computed for the whole action namespace:

	owner user   root, always
	owner group  root  for administrative actions:
	             file.update-access-owner, stop, statistics, process,
	             user.add|update|remove, group.add|remove,
	             action.update-access-*, process.update-access-*
	             users for everything else
	mode         owner=x, group=x, other=- ... except the public set -
	             test, file.list, file.info, file.download,
	             user.register, process, report.submit - which also
	             grants other=x

Entries loaded from an existing file take precedence; only actions missing
from it receive defaults, and the merged catalog is rewritten either way.
An operator can therefore tighten or open any action and survive both
restarts and upgrades that extend the namespace.

# Operations

	ContainsAction / FindAction / Actions   lookups and snapshot
	AuthorizeUser(user, name)               execute check for the dispatcher
	UpdateAccessRights(name, rights)        behind the two update actions
	Statistics / Flush                      statistics action, shutdown

Updates validate the rights, persist the document and return the updated
entry. All state sits behind one mutex; persistence is atomic
(write-temp + rename) and a failed rewrite after an update is logged and
retried on the next change.

# See Also

  - pkg/access - the policy function evaluated per entry
  - pkg/dispatcher - the sole caller of AuthorizeUser
*/
package catalog
