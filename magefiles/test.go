//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the tests of the GPU independent renderer packages with the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race",
		"./engine/core/...",
		"./engine/containers/...",
		"./engine/renderer/allocator/...",
		"./engine/renderer/pipeline/...",
		"./engine/renderer/frame/...",
		"./engine/renderer/overlay/...",
	), withDir("."), withStream())
	return err
}
