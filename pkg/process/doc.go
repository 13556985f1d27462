/*
Package process manages the catalog of named external programs and their
spawn lifecycle.

A process is a cataloged executable with argument templates and access
rights. Clients never supply commands, only the name of a cataloged
process and values for its template keys, so the set of runnable programs
is fixed by the operator.

# Catalog

The catalog is a JSON document of {name, executable, arguments, rights}
entries. On first boot, when no document exists, three defaults are
written, all owned by root:root with execute for owner and group only:

	hello-world     <processes>/helo_world.sh
	process-csr     <processes>/process_csr.sh
	process-report  <processes>/process_report.sh

The literal <processes> in an executable path resolves to the configured
processes directory at submission time.

# Submission

Submit resolves the catalog entry and turns it into one child process:

	1. resolve <processes> in the executable path
	2. template the arguments: every <key> supplied by the request's
	   ArgumentValues is substituted into the catalog templates
	3. create (idempotently) the per-process work dir under var/<name>/
	4. spawn with the inherited environment plus:
	       CLOUD_PROCESS_WORK_DIR       the work dir
	       CLOUD_PROCESS_RANGE_CA_DIR   the CA directory
	       CLOUD_PROCESS_EXECUTOR       <user>:<groups joined by ','>
	       CLOUD_PROCESS_OWNER          <owner.user>:<owner.group>
	       CLOUD_PROCESS_LOG_FILE       log/<name>-<executor>.log
	5. capture stdout and stderr into per-run buffers

A goroutine waits on the child; exit code zero maps to a clean result,
anything else to a ChildProcess error with the stderr buffer as the
diagnostic. A child that fails to start produces no result: Submit itself
returns a ChildProcess error.

# Run Lifecycle

Finished results are parked in a finished map until the consumer calls
Finalize with the run id - a simple rendezvous that keeps the result alive
exactly as long as the reply needs it:

	id, err := m.Submit(request)
	// ... OnCompleted(id, result) fires when the child exits ...
	m.Finalize(id)

# Authorization

AuthorizeUser checks the executor against the process entry's rights with
the execute mask. This is a second gate behind the action catalog's check
on the process action itself: being allowed to submit processes at all
does not grant every cataloged process.

# See Also

  - pkg/dispatcher - submits requests and finalizes completed runs
  - pkg/catalog - the action-level gate in front of this one
*/
package process
