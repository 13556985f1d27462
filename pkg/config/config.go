package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio/v2"
)

// Directory and file basenames inside the cloud directory.
const (
	cloudDirectoryBase = "range-cloud"
	caDirectoryBase    = "range-ca"

	storeDirectoryBase         = "store"
	configurationDirectoryBase = "etc"
	certificateDirectoryBase   = "cert"
	serverCertificateBase      = "server"
	caCertificateBase          = "ca"
	logDirectoryBase           = "log"
	variableDirectoryBase      = "var"
	processesDirectoryBase     = "processes"
	reportsDirectoryBase       = "reports"

	configurationFileBase = "configuration.json"
	actionsFileBase       = "actions.json"
	processesFileBase     = "processes.json"
	usersFileBase         = "users.json"
	logFileBase           = "range-cloud.log"
)

// Defaults.
const (
	DefaultPublicPort         = 8080
	DefaultPrivatePort        = 8443
	DefaultRateLimitPerSecond = 10
	DefaultMaxStoreSize       = int64(1024 * 1024 * 1024)
	DefaultMaxFileSize        = int64(100 * 1024 * 1024)
	DefaultMaxReportLength    = int64(10000)
	DefaultMaxCommentLength   = int64(1000)
	DefaultSendmailCommand    = "sendmail"
	DefaultSendTimeoutMs      = 30000
	DefaultMetricsAddr        = "127.0.0.1:9090"
)

// Config is the full server configuration.
type Config struct {
	CloudDirectory     string
	CaDirectory        string
	PublicPort         int
	PrivatePort        int
	RateLimitPerSecond int
	PublicKey          string
	PrivateKey         string
	PrivateKeyPassword string
	CaPublicKey        string
	FileStore          string
	FileStoreMaxSize   int64
	FileStoreMaxFileSize int64
	MaxReportLength    int64
	MaxCommentLength   int64
	SenderEmailAddress string
	SendmailCommand    string
	SendTimeoutMs      int
	MetricsAddr        string
}

// Default returns the configuration rooted at cloudDir with every field at
// its default value.
func Default(cloudDir string) *Config {
	c := &Config{
		CloudDirectory:       cloudDir,
		CaDirectory:          defaultCaDirectory(),
		PublicPort:           DefaultPublicPort,
		PrivatePort:          DefaultPrivatePort,
		RateLimitPerSecond:   DefaultRateLimitPerSecond,
		FileStoreMaxSize:     DefaultMaxStoreSize,
		FileStoreMaxFileSize: DefaultMaxFileSize,
		MaxReportLength:      DefaultMaxReportLength,
		MaxCommentLength:     DefaultMaxCommentLength,
		SendmailCommand:      DefaultSendmailCommand,
		SendTimeoutMs:        DefaultSendTimeoutMs,
		MetricsAddr:          DefaultMetricsAddr,
	}
	c.PublicKey = filepath.Join(c.ServerCertificateDirectory(), "server.crt")
	c.PrivateKey = filepath.Join(c.ServerCertificateDirectory(), "server.key")
	c.CaPublicKey = filepath.Join(c.CaCertificateDirectory(), "ca.crt")
	c.FileStore = filepath.Join(cloudDir, storeDirectoryBase)
	return c
}

// DefaultCloudDirectory is <home>/range-cloud.
func DefaultCloudDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return cloudDirectoryBase
	}
	return filepath.Join(home, cloudDirectoryBase)
}

func defaultCaDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return caDirectoryBase
	}
	return filepath.Join(home, caDirectoryBase)
}

// Load returns the configuration for cloudDir, merged with the on-disk
// configuration document when one exists.
func Load(cloudDir string) (*Config, error) {
	c := Default(cloudDir)
	path := c.ConfigurationFile()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := c.fromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return c, nil
}

// Document returns the indented JSON configuration document.
func (c *Config) Document() ([]byte, error) {
	data, err := json.MarshalIndent(c.toJSON(), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	return data, nil
}

// Store writes the configuration document to etc/configuration.json.
func (c *Config) Store() error {
	data, err := c.Document()
	if err != nil {
		return err
	}
	path := c.ConfigurationFile()
	if err := renameio.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file %q: %w", path, err)
	}
	return nil
}

// Directory layout accessors.

func (c *Config) ConfigurationDirectory() string {
	return filepath.Join(c.CloudDirectory, configurationDirectoryBase)
}

func (c *Config) CertificateDirectory() string {
	return filepath.Join(c.CloudDirectory, certificateDirectoryBase)
}

func (c *Config) ServerCertificateDirectory() string {
	return filepath.Join(c.CertificateDirectory(), serverCertificateBase)
}

func (c *Config) CaCertificateDirectory() string {
	return filepath.Join(c.CertificateDirectory(), caCertificateBase)
}

func (c *Config) LogDirectory() string {
	return filepath.Join(c.CloudDirectory, logDirectoryBase)
}

func (c *Config) VariableDirectory() string {
	return filepath.Join(c.CloudDirectory, variableDirectoryBase)
}

func (c *Config) ProcessesDirectory() string {
	return filepath.Join(c.CloudDirectory, processesDirectoryBase)
}

func (c *Config) ReportsDirectory() string {
	return filepath.Join(c.CloudDirectory, reportsDirectoryBase)
}

func (c *Config) ConfigurationFile() string {
	return filepath.Join(c.ConfigurationDirectory(), configurationFileBase)
}

func (c *Config) UsersFile() string {
	return filepath.Join(c.ConfigurationDirectory(), usersFileBase)
}

func (c *Config) ActionsFile() string {
	return filepath.Join(c.ConfigurationDirectory(), actionsFileBase)
}

func (c *Config) ProcessesFile() string {
	return filepath.Join(c.ConfigurationDirectory(), processesFileBase)
}

func (c *Config) LogFile() string {
	return filepath.Join(c.LogDirectory(), logFileBase)
}

// EnsureDirectories creates the full cloud directory layout.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.LogDirectory(),
		c.ConfigurationDirectory(),
		c.CertificateDirectory(),
		c.ServerCertificateDirectory(),
		c.CaCertificateDirectory(),
		c.VariableDirectory(),
		c.ProcessesDirectory(),
		c.ReportsDirectory(),
		c.FileStore,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}
	return nil
}

// The persisted document keeps numeric fields as strings, matching the
// format the original deployment tooling writes.
type configJSON struct {
	CloudDirectory       string `json:"cloudDirectory,omitempty"`
	CaDirectory          string `json:"rangeCaDirectory,omitempty"`
	PublicPort           string `json:"publicHttpPort,omitempty"`
	PrivatePort          string `json:"privateHttpPort,omitempty"`
	RateLimitPerSecond   string `json:"rateLimitPerSecond,omitempty"`
	PublicKey            string `json:"publicKey,omitempty"`
	PrivateKey           string `json:"privateKey,omitempty"`
	PrivateKeyPassword   string `json:"privateKeyPassword,omitempty"`
	CaPublicKey          string `json:"caPublicKey,omitempty"`
	FileStore            string `json:"fileStore,omitempty"`
	FileStoreMaxSize     string `json:"fileStoreMaxSize,omitempty"`
	FileStoreMaxFileSize string `json:"fileStoreMaxFileSize,omitempty"`
	MaxReportLength      string `json:"maxReportLength,omitempty"`
	MaxCommentLength     string `json:"maxCommentLength,omitempty"`
	SenderEmailAddress   string `json:"senderEmailAddress,omitempty"`
	SendmailCommand      string `json:"sendmailCommand,omitempty"`
	SendTimeoutMs        string `json:"sendTimeout,omitempty"`
	MetricsAddr          string `json:"metricsAddress,omitempty"`
}

func (c *Config) toJSON() configJSON {
	return configJSON{
		CloudDirectory:       c.CloudDirectory,
		CaDirectory:          c.CaDirectory,
		PublicPort:           strconv.Itoa(c.PublicPort),
		PrivatePort:          strconv.Itoa(c.PrivatePort),
		RateLimitPerSecond:   strconv.Itoa(c.RateLimitPerSecond),
		PublicKey:            c.PublicKey,
		PrivateKey:           c.PrivateKey,
		PrivateKeyPassword:   c.PrivateKeyPassword,
		CaPublicKey:          c.CaPublicKey,
		FileStore:            c.FileStore,
		FileStoreMaxSize:     strconv.FormatInt(c.FileStoreMaxSize, 10),
		FileStoreMaxFileSize: strconv.FormatInt(c.FileStoreMaxFileSize, 10),
		MaxReportLength:      strconv.FormatInt(c.MaxReportLength, 10),
		MaxCommentLength:     strconv.FormatInt(c.MaxCommentLength, 10),
		SenderEmailAddress:   c.SenderEmailAddress,
		SendmailCommand:      c.SendmailCommand,
		SendTimeoutMs:        strconv.Itoa(c.SendTimeoutMs),
		MetricsAddr:          c.MetricsAddr,
	}
}

func (c *Config) fromJSON(data []byte) error {
	var j configJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	if j.CaDirectory != "" {
		c.CaDirectory = j.CaDirectory
	}
	if j.PublicKey != "" {
		c.PublicKey = j.PublicKey
	}
	if j.PrivateKey != "" {
		c.PrivateKey = j.PrivateKey
	}
	if j.PrivateKeyPassword != "" {
		c.PrivateKeyPassword = j.PrivateKeyPassword
	}
	if j.CaPublicKey != "" {
		c.CaPublicKey = j.CaPublicKey
	}
	if j.FileStore != "" {
		c.FileStore = j.FileStore
	}
	if j.SenderEmailAddress != "" {
		c.SenderEmailAddress = j.SenderEmailAddress
	}
	if j.SendmailCommand != "" {
		c.SendmailCommand = j.SendmailCommand
	}
	if j.MetricsAddr != "" {
		c.MetricsAddr = j.MetricsAddr
	}
	var err error
	if c.PublicPort, err = parseInt(j.PublicPort, c.PublicPort); err != nil {
		return fmt.Errorf("invalid publicHttpPort: %w", err)
	}
	if c.PrivatePort, err = parseInt(j.PrivatePort, c.PrivatePort); err != nil {
		return fmt.Errorf("invalid privateHttpPort: %w", err)
	}
	if c.RateLimitPerSecond, err = parseInt(j.RateLimitPerSecond, c.RateLimitPerSecond); err != nil {
		return fmt.Errorf("invalid rateLimitPerSecond: %w", err)
	}
	if c.SendTimeoutMs, err = parseInt(j.SendTimeoutMs, c.SendTimeoutMs); err != nil {
		return fmt.Errorf("invalid sendTimeout: %w", err)
	}
	if c.FileStoreMaxSize, err = parseInt64(j.FileStoreMaxSize, c.FileStoreMaxSize); err != nil {
		return fmt.Errorf("invalid fileStoreMaxSize: %w", err)
	}
	if c.FileStoreMaxFileSize, err = parseInt64(j.FileStoreMaxFileSize, c.FileStoreMaxFileSize); err != nil {
		return fmt.Errorf("invalid fileStoreMaxFileSize: %w", err)
	}
	if c.MaxReportLength, err = parseInt64(j.MaxReportLength, c.MaxReportLength); err != nil {
		return fmt.Errorf("invalid maxReportLength: %w", err)
	}
	if c.MaxCommentLength, err = parseInt64(j.MaxCommentLength, c.MaxCommentLength); err != nil {
		return fmt.Errorf("invalid maxCommentLength: %w", err)
	}
	return nil
}

func parseInt(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

func parseInt64(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
