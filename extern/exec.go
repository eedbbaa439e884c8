// Package extern implements the external collaborators by invoking
// configured executables: the build toolchain, the enclave measurement
// tool, the image and chart registries, and the cluster control plane.
// Credentials reach the tools through their environment untouched.
package extern

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/ledgerline/ledgerline/build"
	"github.com/ledgerline/ledgerline/cache"
	"github.com/ledgerline/ledgerline/cluster"
	"github.com/ledgerline/ledgerline/models"
	"github.com/ledgerline/ledgerline/publish"
)

// Commands configures the argv prefixes of the external tools. Each
// invocation appends operation-specific flags to the prefix.
type Commands struct {
	Toolchain    []string          `yaml:"toolchain"`
	Measurer     []string          `yaml:"measurer"`
	BaseRefresh  []string          `yaml:"base_refresh"`
	ImagePublish []string          `yaml:"image_publish"`
	ChartPublish []string          `yaml:"chart_publish"`
	Cluster      []string          `yaml:"cluster"`
	SourceRoots  map[string]string `yaml:"source_roots"` // group -> source tree root
	OutputDir    string            `yaml:"output_dir"`   // where the toolchain leaves outputs
}

// Driver implements every collaborator interface over the configured
// commands.
type Driver struct {
	cmds   Commands
	logger log.Logger
}

// NewDriver wires a driver.
func NewDriver(cmds Commands, logger log.Logger) *Driver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Driver{
		cmds:   cmds,
		logger: log.With(logger, "component", "extern"),
	}
}

// run executes an argv prefix plus extra arguments. Nonzero exit is a
// hard failure carrying the tail of stderr.
func (d *Driver) run(ctx context.Context, argv []string, extra ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("no command configured")
	}
	args := append(append([]string{}, argv[1:]...), extra...)

	level.Debug(d.logger).Log("exec", argv[0], "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "%s failed: %s", argv[0], tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "; ")
}

// Build implements build.Toolchain: it runs the toolchain for the target
// list and collects the files the toolchain left in the group's output
// directory.
func (d *Driver) Build(ctx context.Context, group models.ArtifactGroup, targets []string) (build.Outputs, error) {
	args := []string{"--group", string(group)}
	args = append(args, targets...)
	if _, err := d.run(ctx, d.cmds.Toolchain, args...); err != nil {
		return nil, err
	}

	dir := filepath.Join(d.cmds.OutputDir, string(group))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading toolchain output dir %s", dir)
	}

	outputs := build.Outputs{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading toolchain output %s", entry.Name())
		}
		outputs[entry.Name()] = content
	}
	return outputs, nil
}

// Measure implements build.Measurer: the signed object goes to a temp
// file, the measurement tool's stdout is the measurement artifact.
func (d *Driver) Measure(ctx context.Context, name string, signedObject []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "signed-*.so")
	if err != nil {
		return nil, errors.Wrap(err, "staging signed object")
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(signedObject); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "staging signed object %s", name)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "staging signed object %s", name)
	}

	return d.run(ctx, d.cmds.Measurer, f.Name())
}

// Fingerprint walks the group's source root and digests its content.
func (d *Driver) Fingerprint(_ context.Context, group models.ArtifactGroup) (string, error) {
	root, ok := d.cmds.SourceRoots[string(group)]
	if !ok {
		return "", errors.Errorf("no source root configured for group %s", group)
	}

	files := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" || entry.Name() == "target" {
				return filepath.SkipDir
			}
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[rel] = content
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "fingerprinting %s", root)
	}
	return cache.TreeFingerprint(files), nil
}

// Refresh implements the base-image refresh collaborator.
func (d *Driver) Refresh(ctx context.Context, tag string) error {
	_, err := d.run(ctx, d.cmds.BaseRefresh, "--tag", tag)
	return err
}

// Publish implements publish.ImageRegistry.
func (d *Driver) Publish(ctx context.Context, spec models.ImageSpec, opts publish.ImageBuildOptions) error {
	_, err := d.run(ctx, d.cmds.ImagePublish, imagePublishArgs(spec, opts)...)
	return err
}

func imagePublishArgs(spec models.ImageSpec, opts publish.ImageBuildOptions) []string {
	return []string{
		"--image", spec.Name,
		"--tag", spec.Tag,
		"--namespace", opts.Namespace,
		"--cache-scope", opts.CacheScope,
	}
}

// Charts returns the chart registry collaborator. Separate from the
// driver because both registries expose a Publish method.
func (d *Driver) Charts() publish.ChartRegistry {
	return &chartDriver{d: d}
}

type chartDriver struct {
	d *Driver
}

func (c *chartDriver) Publish(ctx context.Context, spec models.ChartSpec) error {
	_, err := c.d.run(ctx, c.d.cmds.ChartPublish, chartPublishArgs(spec)...)
	return err
}

func chartPublishArgs(spec models.ChartSpec) []string {
	return []string{
		"--chart", spec.Name,
		"--app-version", spec.AppVersion,
		"--chart-version", spec.ChartVersion,
	}
}

// ResetNamespace implements cluster.ControlPlane.
func (d *Driver) ResetNamespace(ctx context.Context, name string, del bool) error {
	args := []string{"reset", "--namespace", name}
	if del {
		args = append(args, "--delete")
	}
	_, err := d.run(ctx, d.cmds.Cluster, args...)
	return err
}

// Deploy implements cluster.ControlPlane.
func (d *Driver) Deploy(ctx context.Context, cfg cluster.ReleaseConfig) error {
	_, err := d.run(ctx, d.cmds.Cluster, deployArgs(cfg)...)
	return err
}

func deployArgs(cfg cluster.ReleaseConfig) []string {
	args := []string{
		"deploy",
		"--namespace", cfg.Namespace,
		"--version", cfg.Version,
		"--block-version", strconv.Itoa(int(cfg.Block)),
		"--ingest-color", string(cfg.Color),
	}
	if cfg.Minting {
		args = append(args, "--minting")
	}
	return args
}

// RunTests implements cluster.ControlPlane.
func (d *Driver) RunTests(ctx context.Context, cfg cluster.TestConfig) error {
	_, err := d.run(ctx, d.cmds.Cluster, testArgs(cfg)...)
	return err
}

func testArgs(cfg cluster.TestConfig) []string {
	args := []string{
		"test",
		"--namespace", cfg.Namespace,
		"--ingest-color", string(cfg.Color),
		"--block-version", strconv.Itoa(int(cfg.Block)),
	}
	if cfg.FogLoad {
		args = append(args, "--fog-load")
	}
	return args
}

// Upgrade implements cluster.ControlPlane.
func (d *Driver) Upgrade(ctx context.Context, cfg cluster.UpgradeConfig) error {
	_, err := d.run(ctx, d.cmds.Cluster, upgradeArgs(cfg)...)
	return err
}

func upgradeArgs(cfg cluster.UpgradeConfig) []string {
	args := []string{
		"upgrade",
		"--namespace", cfg.Namespace,
		"--version", cfg.Version,
		"--block-version", strconv.Itoa(int(cfg.Block)),
	}
	if cfg.Minting {
		args = append(args, "--minting")
	}
	return args
}
