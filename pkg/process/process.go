package process

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/access"
	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/stats"
	"github.com/Range-Software/range-cloud/pkg/types"
)

// processesPlaceholder in an executable path resolves to the configured
// processes directory.
const processesPlaceholder = "<processes>"

// Settings configures the process manager.
type Settings struct {
	// ProcessesFile is the catalog document path.
	ProcessesFile string

	// ProcessesDirectory holds the executable scripts.
	ProcessesDirectory string

	// WorkingDirectory is the parent of the per-process work directories.
	WorkingDirectory string

	// LogDirectory receives the per-run log files.
	LogDirectory string

	// CaDirectory is handed to children as CLOUD_PROCESS_RANGE_CA_DIR.
	CaDirectory string
}

// Manager is the persisted process catalog plus the spawn lifecycle.
type Manager struct {
	settings Settings
	logger   zerolog.Logger
	stats    *stats.Service

	mu        sync.Mutex
	processes []types.ProcessInfo
	finished  map[uuid.UUID]*types.ProcessResult

	completed func(requestID uuid.UUID, result types.ProcessResult)
}

// New loads the catalog from disk, writing the built-in defaults when no
// catalog exists yet.
func New(settings Settings) (*Manager, error) {
	m := &Manager{
		settings: settings,
		logger:   log.WithComponent("process"),
		stats:    stats.NewService("processService"),
		finished: make(map[uuid.UUID]*types.ProcessResult),
	}

	if _, err := os.Stat(settings.ProcessesFile); err == nil {
		if err := m.readFile(); err != nil {
			return nil, err
		}
		return m, nil
	}

	rights := types.AccessRights{
		Owner: types.AccessOwner{User: types.RootUser, Group: types.RootGroup},
		Mode:  types.AccessMode{User: types.ModeExecute, Group: types.ModeExecute, Other: types.ModeNone},
	}
	m.processes = []types.ProcessInfo{
		{
			Name:         "hello-world",
			Executable:   processesPlaceholder + "/helo_world.sh",
			Arguments:    []string{"--parameter1=<value1>", "--parameter2=<value2>", "--switch"},
			AccessRights: rights,
		},
		{
			Name:         "process-csr",
			Executable:   processesPlaceholder + "/process_csr.sh",
			Arguments:    []string{"--csr-base64=<csr-content-base64>"},
			AccessRights: rights,
		},
		{
			Name:         "process-report",
			Executable:   processesPlaceholder + "/process_report.sh",
			Arguments:    []string{"--report-base64=<report-content-base64>"},
			AccessRights: rights,
		},
	}
	if err := m.writeFile(); err != nil {
		return nil, err
	}
	return m, nil
}

// OnCompleted registers the completion callback. It runs on the goroutine
// watching the child process.
func (m *Manager) OnCompleted(fn func(requestID uuid.UUID, result types.ProcessResult)) {
	m.completed = fn
}

// ContainsProcess reports whether the named process is cataloged.
func (m *Manager) ContainsProcess(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(name) >= 0
}

// FindProcess returns the catalog entry for name, or a zero entry.
func (m *Manager) FindProcess(name string) types.ProcessInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.findLocked(name); i >= 0 {
		return m.processes[i]
	}
	return types.ProcessInfo{}
}

// Processes returns a snapshot of the catalog.
func (m *Manager) Processes() []types.ProcessInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ProcessInfo, len(m.processes))
	copy(out, m.processes)
	return out
}

// AuthorizeUser reports whether user may execute the named process.
func (m *Manager) AuthorizeUser(user types.UserInfo, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLocked(name)
	if i < 0 {
		return false
	}
	return access.Authorize(user, m.processes[i].AccessRights, types.ModeExecute)
}

// UpdateAccessRights replaces the rights of the named process and persists
// the catalog.
func (m *Manager) UpdateAccessRights(name string, rights types.AccessRights) (types.ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !rights.IsValid() {
		return types.ProcessInfo{}, types.NewError(types.ErrInvalidInput, "Invalid access rights %q", rights.String())
	}
	i := m.findLocked(name)
	if i < 0 {
		return types.ProcessInfo{}, types.NewError(types.ErrInvalidInput, "Process name %q does not exist", name)
	}
	m.logger.Info().Str("process", name).Str("rights", rights.String()).Msg("Updating process access rights")
	m.processes[i].AccessRights = rights
	if err := m.writeFile(); err != nil {
		m.logger.Error().Err(err).Str("file", m.settings.ProcessesFile).Msg("Failed to write processes file")
	}
	return m.processes[i], nil
}

// Submit resolves and spawns one run of the requested process, returning
// the generated run id. The result arrives through the completion callback
// when the child exits.
func (m *Manager) Submit(request types.ProcessRequest) (uuid.UUID, error) {
	info := m.FindProcess(request.Name)
	if info.Name == "" {
		return uuid.Nil, types.NewError(types.ErrInvalidInput, "Invalid process. Process %q is not valid.", request.Name)
	}

	executable := strings.ReplaceAll(info.Executable, processesPlaceholder, m.settings.ProcessesDirectory)

	arguments := make([]string, len(info.Arguments))
	copy(arguments, info.Arguments)
	for key, value := range request.ArgumentValues {
		for i := range arguments {
			arguments[i] = strings.ReplaceAll(arguments[i], "<"+key+">", value)
		}
	}

	workDir := filepath.Join(m.settings.WorkingDirectory, info.Name)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		m.logger.Error().Err(err).Str("dir", workDir).Msg("Failed to create working directory")
		return uuid.Nil, types.NewError(types.ErrApplication, "Internal application error")
	}

	logFile := filepath.Join(m.settings.LogDirectory, fmt.Sprintf("%s-%s.log", request.Name, request.Executor.Name))

	env := append(os.Environ(),
		"CLOUD_PROCESS_WORK_DIR="+workDir,
		"CLOUD_PROCESS_RANGE_CA_DIR="+m.settings.CaDirectory,
		"CLOUD_PROCESS_EXECUTOR="+request.Executor.Name+":"+strings.Join(request.Executor.GroupNames, ","),
		"CLOUD_PROCESS_OWNER="+info.AccessRights.Owner.User+":"+info.AccessRights.Owner.Group,
		"CLOUD_PROCESS_LOG_FILE="+logFile,
	)

	id := uuid.New()

	cmd := exec.Command(executable, arguments...)
	cmd.Dir = workDir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	m.logger.Info().
		Str("run_id", id.String()).
		Str("process", info.Name).
		Str("executable", executable).
		Msg("Starting process")

	if err := cmd.Start(); err != nil {
		m.logger.Error().Err(err).Str("process", info.Name).Msg("Process failed to start")
		m.stats.RecordCounter(info.Name+"Errored", 1)
		metrics.ProcessRuns.WithLabelValues(info.Name, "errored").Inc()
		return uuid.Nil, types.NewError(types.ErrChildProcess, "Child process failed: %v", err)
	}
	m.stats.RecordCounter(info.Name+"Started", 1)

	go m.wait(id, info, request, cmd, &stdout, &stderr)

	return id, nil
}

// wait blocks on the child and publishes its result.
func (m *Manager) wait(id uuid.UUID, info types.ProcessInfo, request types.ProcessRequest, cmd *exec.Cmd, stdout, stderr *bytes.Buffer) {
	err := cmd.Wait()

	result := types.ProcessResult{
		Request: request,
		Output:  stdout.Bytes(),
		Errors:  stderr.Bytes(),
	}

	switch {
	case err == nil:
		result.ErrorType = types.ErrNone
		m.stats.RecordCounter(info.Name+"Finished", 1)
		metrics.ProcessRuns.WithLabelValues(info.Name, "finished").Inc()
		m.logger.Info().Str("run_id", id.String()).Int("exit_code", 0).Msg("Process finished")
	default:
		result.ErrorType = types.ErrChildProcess
		if len(result.Errors) == 0 {
			result.Errors = []byte("Child process failed.")
		}
		m.stats.RecordCounter(info.Name+"Crashed", 1)
		metrics.ProcessRuns.WithLabelValues(info.Name, "crashed").Inc()
		m.logger.Error().Err(err).Str("run_id", id.String()).Msg("Process failed")
	}

	m.mu.Lock()
	m.finished[id] = &result
	m.mu.Unlock()

	if m.completed != nil {
		m.completed(id, result)
	}
}

// Finalize drops the finished run from memory once the dispatcher has
// consumed its result.
func (m *Manager) Finalize(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Debug().Str("run_id", id.String()).Msg("Finalizing process")
	delete(m.finished, id)
}

// Statistics returns the service statistics snapshot.
func (m *Manager) Statistics() map[string]interface{} {
	m.mu.Lock()
	size := int64(len(m.processes))
	m.mu.Unlock()
	m.stats.SetCounter("size", size)
	return m.stats.Snapshot()
}

// Flush rewrites the catalog document.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeFile()
}

func (m *Manager) findLocked(name string) int {
	for i, p := range m.processes {
		if p.Name == name {
			return i
		}
	}
	return -1
}

type document struct {
	Processes []types.ProcessInfo `json:"processes"`
}

func (m *Manager) readFile() error {
	data, err := os.ReadFile(m.settings.ProcessesFile)
	if err != nil {
		return fmt.Errorf("failed to read processes file %q: %w", m.settings.ProcessesFile, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse processes file %q: %w", m.settings.ProcessesFile, err)
	}
	m.processes = doc.Processes
	m.logger.Info().Str("file", m.settings.ProcessesFile).Int("bytes", len(data)).Msg("Read processes file")
	return nil
}

func (m *Manager) writeFile() error {
	data, err := json.MarshalIndent(document{Processes: m.processes}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize processes: %w", err)
	}
	if err := renameio.WriteFile(m.settings.ProcessesFile, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write processes file %q: %w", m.settings.ProcessesFile, err)
	}
	return nil
}
