//go:build mage

package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/magefile/mage/mg"

	"github.com/spaghettifunk/prism/engine/renderer/pipeline"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every shader source under assets/shaders next to itself as <source>.spv.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the prism binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream())
	return err
}

func buildShaders() error {
	compiler := pipeline.NewShaderCompiler("glslc", 30*time.Second)
	ctx := context.Background()
	return filepath.WalkDir(shaderDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch filepath.Ext(path) {
		case ".vert", ".frag", ".comp", ".glsl", ".wgsl":
		default:
			return nil
		}
		out, err := compiler.Compile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("compiled %s -> %s\n", path, out)
		return nil
	})
}
