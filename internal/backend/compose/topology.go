package compose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/dotenv"
	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/deployerr"
	"gopkg.in/yaml.v3"
)

// ExpectedServices must all be defined by the materialized compose file.
var ExpectedServices = []string{
	"postgres",
	"loki",
	"loki-proxy",
	"influxdb",
	"cosy-backend",
	"cosy-frontend",
	"nginx",
}

// validateTopology loads the compose file the way compose itself would,
// interpolating from the written .env, and checks the service set.
func validateTopology(ctx context.Context, composePath, envPath, project string) error {
	env, err := dotenv.GetEnvFromFile(map[string]string{}, []string{envPath})
	if err != nil {
		return deployerr.New(deployerr.FilesystemError, fmt.Errorf("read %s: %w", envPath, err))
	}
	data, err := os.ReadFile(composePath)
	if err != nil {
		return deployerr.New(deployerr.FilesystemError, fmt.Errorf("read compose file %s: %w", composePath, err))
	}
	details := composetypes.ConfigDetails{
		WorkingDir:  filepath.Dir(composePath),
		ConfigFiles: []composetypes.ConfigFile{{Filename: composePath, Content: data}},
		Environment: composetypes.Mapping(env),
	}
	parsed, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(project, true)
	})
	if err != nil {
		return deployerr.New(deployerr.ArtifactFetchFailed, fmt.Errorf("invalid compose file %s: %w", composePath, err)).
			WithHint("the template source may be newer than this cosyctl; pin --source-ref to a matching release")
	}
	defined := map[string]bool{}
	for _, name := range parsed.ServiceNames() {
		defined[name] = true
	}
	var missing []string
	for _, name := range ExpectedServices {
		if !defined[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return deployerr.Newf(deployerr.ArtifactFetchFailed, "compose file %s lacks services: %s", composePath, strings.Join(missing, ", ")).
			WithHint("the template source may not match this cosyctl; pin --source-ref to a matching release")
	}
	return nil
}

// installedProject returns the compose project an install directory was
// created with: the top-level name of its compose file, else the .env
// record, else the default project.
func installedProject(dir string) (string, error) {
	composePath := filepath.Join(dir, ComposeFile)
	data, err := os.ReadFile(composePath)
	if err != nil {
		return "", deployerr.New(deployerr.FilesystemError, fmt.Errorf("read compose file %s: %w", composePath, err))
	}
	var top struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &top); err != nil {
		return "", deployerr.New(deployerr.CorruptInstallation, fmt.Errorf("parse %s: %w", composePath, err)).
			WithHint("remove the directory manually if it holds nothing you need")
	}
	if name := strings.TrimSpace(top.Name); name != "" && !strings.Contains(name, "$") {
		return name, nil
	}

	envPath := filepath.Join(dir, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		env, err := dotenv.GetEnvFromFile(map[string]string{}, []string{envPath})
		if err != nil {
			return "", deployerr.New(deployerr.FilesystemError, fmt.Errorf("read %s: %w", envPath, err))
		}
		if name := strings.TrimSpace(env[ProjectEnvKey]); name != "" {
			return name, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", deployerr.New(deployerr.FilesystemError, fmt.Errorf("inspect %s: %w", envPath, err))
	}
	return config.DefaultProject, nil
}
