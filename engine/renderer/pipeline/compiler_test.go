package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
)

type recordingCompiler struct {
	sources []string
}

func (c *recordingCompiler) Compile(_ context.Context, source string) (string, error) {
	c.sources = append(c.sources, source)
	return SPIRVPath(source), nil
}

func TestShaderCompilerDispatch(t *testing.T) {
	hlsl := &recordingCompiler{}
	c := NewShaderCompiler("glslc", time.Second)
	c.Register(".HLSL", hlsl)

	out, err := c.Compile(context.Background(), "shaders/prebuilt.spv")
	if err != nil || out != "shaders/prebuilt.spv" {
		t.Errorf("Compile(.spv) = (%q, %v), want passthrough", out, err)
	}

	out, err = c.Compile(context.Background(), "shaders/mesh.hlsl")
	if err != nil || out != "shaders/mesh.hlsl.spv" {
		t.Errorf("Compile(.hlsl) = (%q, %v)", out, err)
	}
	if len(hlsl.sources) != 1 {
		t.Errorf("registered compiler called %d times, want 1", len(hlsl.sources))
	}
}

func TestGlslcCompilerMissingExecutable(t *testing.T) {
	c := &GlslcCompiler{Executable: filepath.Join(t.TempDir(), "no-such-glslc"), Timeout: time.Second}
	_, err := c.Compile(context.Background(), "mesh.vert")
	if !errors.Is(err, core.ErrCompileFailed) {
		t.Errorf("Compile() error = %v, want ErrCompileFailed", err)
	}
}

func TestNagaCompilerMissingSource(t *testing.T) {
	_, err := NagaCompiler{}.Compile(context.Background(), filepath.Join(t.TempDir(), "missing.wgsl"))
	if err == nil {
		t.Error("Compile of a missing source succeeded")
	}
}
