package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/stats"
	"github.com/Range-Software/range-cloud/pkg/types"
)

const rule = "--------------------------------------------------------------------------------"
const doubleRule = "================================================================================"

// Settings configures the report archive.
type Settings struct {
	// ReportDirectory receives the report files.
	ReportDirectory string

	// MaxReportLength bounds the report body; negative disables the check.
	MaxReportLength int64

	// MaxCommentLength bounds the comment; negative disables the check.
	MaxCommentLength int64
}

// Archive writes submitted reports to flat files. There is no in-memory
// index; the directory is the archive.
type Archive struct {
	settings  Settings
	logger    zerolog.Logger
	stats     *stats.Service
	submitted atomic.Int64
}

// New creates the archive.
func New(settings Settings) *Archive {
	return &Archive{
		settings: settings,
		logger:   log.WithComponent("report"),
		stats:    stats.NewService("reportService"),
	}
}

// Submit validates and stores one report, returning its id.
func (a *Archive) Submit(from string, record types.ReportRecord) (uuid.UUID, error) {
	if a.settings.MaxReportLength >= 0 && int64(len(record.Report)) > a.settings.MaxReportLength {
		return uuid.Nil, types.NewError(types.ErrInvalidInput,
			"Report length '%d' is bigger than maximum allowed '%d'.", len(record.Report), a.settings.MaxReportLength)
	}
	if a.settings.MaxCommentLength >= 0 && int64(len(record.Comment)) > a.settings.MaxCommentLength {
		return uuid.Nil, types.NewError(types.ErrInvalidInput,
			"Comment length '%d' is bigger than maximum allowed '%d'.", len(record.Comment), a.settings.MaxCommentLength)
	}

	id := uuid.New()
	now := time.Now()

	fileName := filepath.Join(a.settings.ReportDirectory,
		fmt.Sprintf("%s-%s.rpt", now.Format("20060102-150405"), id.String()))

	a.logger.Info().Str("file", fileName).Msg("Writing report file")

	var b strings.Builder
	b.WriteString("ID: " + id.String() + "\n")
	b.WriteString("FROM: " + from + "\n")
	b.WriteString("CREATED: " + time.Unix(record.CreatedAt, 0).String() + "\n")
	b.WriteString("RECORDED: " + now.String() + "\n")
	b.WriteString(doubleRule + "\n")
	b.WriteString("\n")
	b.WriteString("REPORT BEGIN\n")
	b.WriteString(rule + "\n")
	b.WriteString(record.Report + "\n")
	b.WriteString(rule + "\n")
	b.WriteString("REPORT END\n")
	b.WriteString("\n")
	b.WriteString(doubleRule + "\n")
	b.WriteString("\n")
	b.WriteString("COMMENT BEGIN\n")
	b.WriteString(rule + "\n")
	b.WriteString(record.Comment + "\n")
	b.WriteString(rule + "\n")
	b.WriteString("COMMENT END\n")

	if err := os.WriteFile(fileName, []byte(b.String()), 0o600); err != nil {
		return uuid.Nil, types.NewError(types.ErrOpenFile, "Failed to write report file %q: %v", fileName, err)
	}

	a.submitted.Add(1)
	return id, nil
}

// Statistics returns the service statistics snapshot.
func (a *Archive) Statistics() map[string]interface{} {
	a.stats.SetCounter("reports", a.submitted.Load())
	return a.stats.Snapshot()
}
