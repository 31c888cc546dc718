package compose

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/request"
	"gopkg.in/yaml.v3"
)

// ProjectEnvKey names the .env entry holding the compose project. Teardown
// reads it back from the install directory.
const ProjectEnvKey = "COSY_PROJECT"

type envEntry struct {
	key, value string
}

// envEntries lists the .env keys in file order.
func envEntries(req *request.DeploymentRequest, s *config.Settings, creds credentials.Set) []envEntry {
	db := creds.Get(credentials.Database)
	logs := creds.Get(credentials.LogStore)
	metrics := creds.Get(credentials.MetricsStore)
	admin := creds.Get(credentials.ApplicationAdmin)
	return []envEntry{
		{ProjectEnvKey, s.Project},
		{"COSY_DOMAIN", req.Domain()},
		{"COSY_PORT", strconv.Itoa(req.Port())},
		{"COSY_CORS_ALLOWED_ORIGINS", req.CORSOrigin()},
		{"COSY_VERSION", s.Images.App},
		{"POSTGRES_VERSION", s.Images.Postgres},
		{"LOKI_VERSION", s.Images.Loki},
		{"NGINX_VERSION", s.Images.Nginx},
		{"INFLUXDB_VERSION", s.Images.InfluxDB},
		{"POSTGRES_USER", db.Username},
		{"POSTGRES_PASSWORD", db.Secret},
		{"POSTGRES_DB", credentials.DatabaseUser},
		{"LOKI_USER", logs.Username},
		{"LOKI_PASSWORD", logs.Secret},
		{"INFLUXDB_ADMIN_USER", metrics.Username},
		{"INFLUXDB_ADMIN_PASSWORD", metrics.Secret},
		{"INFLUXDB_ADMIN_TOKEN", metrics.Token},
		{"INFLUXDB_ORG", s.MetricsOrg},
		{"INFLUXDB_BUCKET", s.MetricsBucket},
		{"COSY_ADMIN_USERNAME", admin.Username},
		{"COSY_ADMIN_PASSWORD", admin.Secret},
	}
}

func renderEnv(entries []envEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Generated by cosyctl. Contains secrets; keep it owner-readable only.\n")
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s=%s\n", e.key, e.value)
	}
	return buf.Bytes()
}

type account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Token    string `yaml:"token,omitempty"`
}

type credentialsSummary struct {
	GeneratedAt  time.Time `yaml:"generated_at"`
	URL          string    `yaml:"url"`
	Admin        account   `yaml:"admin"`
	Database     account   `yaml:"database"`
	LogStore     account   `yaml:"log_store"`
	MetricsStore account   `yaml:"metrics_store"`
}

func renderCredentialsSummary(req *request.DeploymentRequest, creds credentials.Set, now time.Time) ([]byte, error) {
	acct := func(slot credentials.Slot) account {
		c := creds.Get(slot)
		return account{Username: c.Username, Password: c.Secret, Token: c.Token}
	}
	summary := credentialsSummary{
		GeneratedAt:  now.UTC().Truncate(time.Second),
		URL:          req.CORSOrigin(),
		Admin:        acct(credentials.ApplicationAdmin),
		Database:     acct(credentials.Database),
		LogStore:     acct(credentials.LogStore),
		MetricsStore: acct(credentials.MetricsStore),
	}
	var buf bytes.Buffer
	buf.WriteString("# Cosy credentials generated at install time. Store them somewhere safe.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return nil, fmt.Errorf("encode credentials summary: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode credentials summary: %w", err)
	}
	return buf.Bytes(), nil
}

