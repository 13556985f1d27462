/*
Package config holds the server configuration and the cloud directory
layout.

Configuration is layered: built-in defaults, then the on-disk document,
then command-line flags, each overriding the last. The resolved
configuration is written back to the document on every start, so the file
always reflects what the server actually ran with.

# Cloud Directory Layout

Every path the server touches hangs off one root:

	<cloud-dir>/
	  etc/     configuration.json, users.json, actions.json, processes.json
	  cert/    server/ (server.crt, server.key), ca/ (ca.crt)
	  store/   index.txt and one blob per file id
	  log/     range-cloud.log and per-process-run logs
	  var/     per-process working directories
	  processes/  the cataloged executables
	  reports/    one .rpt file per submitted report

EnsureDirectories creates the whole tree; the accessors (UsersFile,
ActionsFile, FileStore, ...) are the only place path composition happens.

# Document Format

The document is JSON with numeric fields serialized as strings
("publicHttpPort": "8080"), matching the format the deployment tooling
reads and writes. Load tolerates a missing document (pure defaults) but
rejects one it cannot parse; partial documents override only the fields
they carry.

# Settings

Ports (public 8080, private 8443), per-peer rate limit, TLS key material
paths, file store location and size caps, report and comment length caps,
the sender address, sendmail command and timeout for the mailer, and the
loopback metrics address.
*/
package config
