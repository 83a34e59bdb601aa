package pipeline

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
)

const (
	spirvMagic = 0x07230203
	// Magic, version, generator, bound and schema.
	spirvHeaderWords = 5
)

// SPIRVPath is where the compiled binary of a shader source lives.
func SPIRVPath(source string) string {
	return source + ".spv"
}

// ParseSPIRV converts a little endian SPIR-V module into words.
func ParseSPIRV(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, errors.Mark(errors.Newf("module size %d is not a multiple of 4", len(data)), core.ErrInvalidSPIRV)
	}
	if len(data) < spirvHeaderWords*4 {
		return nil, errors.Mark(errors.Newf("module of %d bytes is shorter than the header", len(data)), core.ErrInvalidSPIRV)
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.Mark(errors.Newf("bad magic number %#08x", words[0]), core.ErrInvalidSPIRV)
	}
	return words, nil
}

func LoadSPIRV(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read shader binary %s", path)
	}
	words, err := ParseSPIRV(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader binary %s", path)
	}
	return words, nil
}
