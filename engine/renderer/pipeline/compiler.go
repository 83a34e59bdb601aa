package pipeline

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"

	"github.com/spaghettifunk/prism/engine/core"
)

// Compiler turns a shader source into a SPIR-V binary written to
// SPIRVPath(source) and returns that path.
type Compiler interface {
	Compile(ctx context.Context, source string) (string, error)
}

// GlslcCompiler runs glslc out of process.
type GlslcCompiler struct {
	Executable string
	Timeout    time.Duration
}

func (c *GlslcCompiler) Compile(ctx context.Context, source string) (string, error) {
	out := SPIRVPath(source)
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	executable := c.Executable
	if executable == "" {
		executable = "glslc"
	}
	core.LogDebug("Executing: %s %s -o %s", executable, source, out)

	var b bytes.Buffer
	cmd := exec.CommandContext(ctx, executable, source, "-o", out)
	cmd.Stdout = &b
	cmd.Stderr = &b
	if err := cmd.Run(); err != nil {
		return "", errors.Mark(
			errors.Wrapf(err, "error executing %s on %s: %s", executable, source, strings.TrimSpace(b.String())),
			core.ErrCompileFailed)
	}
	return out, nil
}

// NagaCompiler translates WGSL in process.
type NagaCompiler struct{}

func (NagaCompiler) Compile(_ context.Context, source string) (string, error) {
	src, err := os.ReadFile(source)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read shader source %s", source)
	}
	spirv, err := naga.Compile(string(src))
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to compile %s", source), core.ErrCompileFailed)
	}
	if _, err := ParseSPIRV(spirv); err != nil {
		return "", errors.Wrapf(err, "naga output for %s", source)
	}
	out := SPIRVPath(source)
	if err := os.WriteFile(out, spirv, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", out)
	}
	return out, nil
}

// ShaderCompiler picks a compiler by source extension. WGSL goes through naga,
// every other stage source through glslc. Sources that already are SPIR-V are
// passed through untouched.
type ShaderCompiler struct {
	byExtension map[string]Compiler
	fallback    Compiler
}

func NewShaderCompiler(glslc string, timeout time.Duration) *ShaderCompiler {
	return &ShaderCompiler{
		byExtension: map[string]Compiler{
			".wgsl": NagaCompiler{},
		},
		fallback: &GlslcCompiler{Executable: glslc, Timeout: timeout},
	}
}

// Register overrides the compiler used for an extension such as ".hlsl".
func (c *ShaderCompiler) Register(ext string, compiler Compiler) {
	c.byExtension[strings.ToLower(ext)] = compiler
}

func (c *ShaderCompiler) Compile(ctx context.Context, source string) (string, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == ".spv" {
		return source, nil
	}
	if compiler, ok := c.byExtension[ext]; ok {
		return compiler.Compile(ctx, source)
	}
	return c.fallback.Compile(ctx, source)
}
