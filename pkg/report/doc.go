/*
Package report is the append-only archive of user-submitted reports.

There is no index and no read path: the directory of .rpt files is the
archive, and anything beyond "write it down safely" is left to whatever
processes the files later (see the process-report catalog entry).

# File Format

Each submission becomes reports/<YYYYMMDD-HHMMSS>-<uuid>.rpt, a fixed
human-readable layout:

	ID: <uuid>
	FROM: <owner>@<peer>
	CREATED: <client timestamp>
	RECORDED: <server timestamp>
	================================================================================

	REPORT BEGIN
	--------------------------------------------------------------------------------
	<report body>
	--------------------------------------------------------------------------------
	REPORT END

followed by the COMMENT block in the same shape. Report and comment are
length-capped before anything is written; a negative cap disables the
check.
*/
package report
