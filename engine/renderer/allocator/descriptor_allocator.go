package allocator

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// MaxSetsPerPool caps the growth of new descriptor pools.
const MaxSetsPerPool uint32 = 4096

type PoolSizeRatio struct {
	Type  metadata.DescriptorType
	Ratio float32
}

type PoolSize struct {
	Type  metadata.DescriptorType
	Count uint32
}

// PoolDevice is the native side of descriptor pool management.
// AllocateDescriptorSet reports exhaustion with core.ErrPoolOutOfMemory or
// core.ErrFragmentedPool.
type PoolDevice[P comparable, L any, S any] interface {
	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (P, error)
	AllocateDescriptorSet(pool P, layout L) (S, error)
	ResetDescriptorPool(pool P) error
	DestroyDescriptorPool(pool P)
}

type descriptorPool[P comparable] struct {
	handle    P
	maxSets   uint32
	remaining uint32
}

// DescriptorAllocatorGrowable allocates descriptor sets from a growing list of
// pools. Every pool tracks how many sets it can still hand out, so a pool known
// to be spent goes straight to the full list instead of failing an allocation.
type DescriptorAllocatorGrowable[P comparable, L any, S any] struct {
	device      PoolDevice[P, L, S]
	ratios      []PoolSizeRatio
	setsPerPool uint32
	readyPools  []*descriptorPool[P]
	fullPools   []*descriptorPool[P]
}

func NewDescriptorAllocatorGrowable[P comparable, L any, S any](device PoolDevice[P, L, S], initialSets uint32, ratios []PoolSizeRatio) (*DescriptorAllocatorGrowable[P, L, S], error) {
	if initialSets == 0 {
		return nil, errors.New("descriptor allocator needs at least one set per pool")
	}
	da := &DescriptorAllocatorGrowable[P, L, S]{
		device: device,
		ratios: append([]PoolSizeRatio(nil), ratios...),
	}
	pool, err := da.createPool(initialSets)
	if err != nil {
		return nil, err
	}
	da.setsPerPool = grow(initialSets)
	da.readyPools = append(da.readyPools, pool)
	return da, nil
}

// grow scales sets by 1.5, at least by one, up to MaxSetsPerPool.
func grow(sets uint32) uint32 {
	next := max(uint32(float32(sets)*1.5), sets+1)
	return min(next, MaxSetsPerPool)
}

// PoolSizes scales the ratios by setCount. Every type gets room for at least one descriptor.
func PoolSizes(ratios []PoolSizeRatio, setCount uint32) []PoolSize {
	sizes := make([]PoolSize, 0, len(ratios))
	for _, r := range ratios {
		count := uint32(r.Ratio * float32(setCount))
		if count == 0 {
			count = 1
		}
		sizes = append(sizes, PoolSize{Type: r.Type, Count: count})
	}
	return sizes
}

func (da *DescriptorAllocatorGrowable[P, L, S]) createPool(setCount uint32) (*descriptorPool[P], error) {
	handle, err := da.device.CreateDescriptorPool(setCount, PoolSizes(da.ratios, setCount))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create descriptor pool with %d sets", setCount)
	}
	core.LogDebug("created descriptor pool for %d sets", setCount)
	return &descriptorPool[P]{handle: handle, maxSets: setCount, remaining: setCount}, nil
}

func (da *DescriptorAllocatorGrowable[P, L, S]) getPool() (*descriptorPool[P], error) {
	if n := len(da.readyPools); n > 0 {
		pool := da.readyPools[n-1]
		da.readyPools = da.readyPools[:n-1]
		return pool, nil
	}
	pool, err := da.createPool(da.setsPerPool)
	if err != nil {
		return nil, err
	}
	da.setsPerPool = grow(da.setsPerPool)
	return pool, nil
}

// Allocate returns a descriptor set for layout. An exhausted pool is retired
// and the allocation retried exactly once on another pool.
func (da *DescriptorAllocatorGrowable[P, L, S]) Allocate(layout L) (S, error) {
	var zero S

	pool, err := da.getPool()
	if err != nil {
		return zero, err
	}
	set, err := da.device.AllocateDescriptorSet(pool.handle, layout)
	if core.IsPoolExhausted(err) {
		pool.remaining = 0
		da.fullPools = append(da.fullPools, pool)

		if pool, err = da.getPool(); err != nil {
			return zero, err
		}
		set, err = da.device.AllocateDescriptorSet(pool.handle, layout)
	}
	if err != nil {
		if core.IsPoolExhausted(err) {
			pool.remaining = 0
		}
		da.release(pool)
		return zero, errors.Wrap(err, "descriptor set allocation failed after retry")
	}

	pool.remaining--
	da.release(pool)
	return set, nil
}

func (da *DescriptorAllocatorGrowable[P, L, S]) release(pool *descriptorPool[P]) {
	if pool.remaining == 0 {
		da.fullPools = append(da.fullPools, pool)
		return
	}
	da.readyPools = append(da.readyPools, pool)
}

// ClearPools resets every pool and makes all of them ready again.
func (da *DescriptorAllocatorGrowable[P, L, S]) ClearPools() error {
	pools := append(da.readyPools, da.fullPools...)
	da.readyPools = da.readyPools[:0:0]
	da.fullPools = da.fullPools[:0:0]

	var errs error
	for _, pool := range pools {
		if err := da.device.ResetDescriptorPool(pool.handle); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
		pool.remaining = pool.maxSets
		da.readyPools = append(da.readyPools, pool)
	}
	return errs
}

func (da *DescriptorAllocatorGrowable[P, L, S]) DestroyPools() {
	for _, pool := range da.readyPools {
		da.device.DestroyDescriptorPool(pool.handle)
	}
	for _, pool := range da.fullPools {
		da.device.DestroyDescriptorPool(pool.handle)
	}
	da.readyPools = nil
	da.fullPools = nil
}

func (da *DescriptorAllocatorGrowable[P, L, S]) SetsPerPool() uint32 {
	return da.setsPerPool
}

func (da *DescriptorAllocatorGrowable[P, L, S]) ReadyPools() int {
	return len(da.readyPools)
}

func (da *DescriptorAllocatorGrowable[P, L, S]) FullPools() int {
	return len(da.fullPools)
}
