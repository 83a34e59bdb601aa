package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

func TestVulkanError(t *testing.T) {
	tests := []struct {
		name   string
		result vk.Result
		want   error
	}{
		{"out of date", vk.ErrorOutOfDate, core.ErrSurfaceOutOfDate},
		{"suboptimal", vk.Suboptimal, core.ErrSurfaceOutOfDate},
		{"timeout", vk.Timeout, core.ErrFenceTimeout},
		{"not ready", vk.NotReady, core.ErrFenceTimeout},
		{"pool out of memory", vk.ErrorOutOfPoolMemory, core.ErrPoolOutOfMemory},
		{"fragmented pool", vk.ErrorFragmentedPool, core.ErrFragmentedPool},
		{"device lost", vk.ErrorDeviceLost, core.ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VulkanError(tt.result, "vkTest")
			if !errors.Is(err, tt.want) {
				t.Fatalf("VulkanError(%v) = %v, want it to match %v", tt.result, err, tt.want)
			}
		})
	}

	if err := VulkanError(vk.Success, "vkTest"); err != nil {
		t.Fatalf("VulkanError(Success) = %v, want nil", err)
	}
	err := VulkanError(vk.ErrorOutOfHostMemory, "vkTest")
	if err == nil || errors.Is(err, core.ErrSurfaceOutOfDate) {
		t.Fatalf("unexpected classification of host OOM: %v", err)
	}
	if core.IsPoolExhausted(VulkanError(vk.ErrorFragmentedPool, "vkAllocateDescriptorSets")) != true {
		t.Fatal("fragmented pool should count as pool exhaustion")
	}
}

func TestVulkanResultString(t *testing.T) {
	if got := VulkanResultString(vk.ErrorOutOfDate, false); got != "VK_ERROR_OUT_OF_DATE_KHR" {
		t.Fatalf("short string = %q", got)
	}
	if got := VulkanResultString(vk.Timeout, true); got == "VK_TIMEOUT" {
		t.Fatalf("extended string missing description: %q", got)
	}
	if VulkanResultIsSuccess(vk.ErrorDeviceLost) {
		t.Fatal("device lost reported as success")
	}
	if !VulkanResultIsSuccess(vk.Suboptimal) {
		t.Fatal("suboptimal is a success code")
	}
}

func TestMathClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want uint32
	}{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{11, 1, 10, 10},
	}
	for _, tt := range tests {
		if got := MathClamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("MathClamp(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestVulkanSafeStrings(t *testing.T) {
	in := []string{"VK_KHR_surface", "VK_LAYER_KHRONOS_validation\x00", ""}
	out := VulkanSafeStrings(in)
	for i, s := range out {
		if s[len(s)-1] != 0 {
			t.Errorf("string %d not terminated: %q", i, s)
		}
	}
	if in[0] != "VK_KHR_surface" {
		t.Fatal("input slice modified")
	}
	if cString([]byte{'a', 'b', 0, 'c'}) != "ab" {
		t.Fatal("cString did not stop at the terminator")
	}
}
