package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/prism/engine/core"
)

type resultText struct {
	name     string
	extended string
}

var resultStrings = map[vk.Result]resultText{
	vk.Success:              {"VK_SUCCESS", "command successfully completed"},
	vk.NotReady:             {"VK_NOT_READY", "a fence or query has not yet completed"},
	vk.Timeout:              {"VK_TIMEOUT", "a wait operation has not completed in the specified time"},
	vk.EventSet:             {"VK_EVENT_SET", "an event is signaled"},
	vk.EventReset:           {"VK_EVENT_RESET", "an event is unsignaled"},
	vk.Incomplete:           {"VK_INCOMPLETE", "a return array was too small for the result"},
	vk.Suboptimal:           {"VK_SUBOPTIMAL_KHR", "the swapchain no longer matches the surface exactly but can still present"},
	vk.PipelineCompileRequired: {"VK_PIPELINE_COMPILE_REQUIRED", "pipeline creation would have required compilation"},

	vk.ErrorOutOfHostMemory:      {"VK_ERROR_OUT_OF_HOST_MEMORY", "a host memory allocation has failed"},
	vk.ErrorOutOfDeviceMemory:    {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "a device memory allocation has failed"},
	vk.ErrorInitializationFailed: {"VK_ERROR_INITIALIZATION_FAILED", "initialization of an object could not be completed"},
	vk.ErrorDeviceLost:           {"VK_ERROR_DEVICE_LOST", "the logical or physical device has been lost"},
	vk.ErrorMemoryMapFailed:      {"VK_ERROR_MEMORY_MAP_FAILED", "mapping of a memory object has failed"},
	vk.ErrorLayerNotPresent:      {"VK_ERROR_LAYER_NOT_PRESENT", "a requested layer is not present or could not be loaded"},
	vk.ErrorExtensionNotPresent:  {"VK_ERROR_EXTENSION_NOT_PRESENT", "a requested extension is not supported"},
	vk.ErrorFeatureNotPresent:    {"VK_ERROR_FEATURE_NOT_PRESENT", "a requested feature is not supported"},
	vk.ErrorIncompatibleDriver:   {"VK_ERROR_INCOMPATIBLE_DRIVER", "the requested version of Vulkan is not supported by the driver"},
	vk.ErrorTooManyObjects:       {"VK_ERROR_TOO_MANY_OBJECTS", "too many objects of the type have already been created"},
	vk.ErrorFormatNotSupported:   {"VK_ERROR_FORMAT_NOT_SUPPORTED", "a requested format is not supported on this device"},
	vk.ErrorFragmentedPool:       {"VK_ERROR_FRAGMENTED_POOL", "a pool allocation has failed due to fragmentation of the pool memory"},
	vk.ErrorSurfaceLost:          {"VK_ERROR_SURFACE_LOST_KHR", "a surface is no longer available"},
	vk.ErrorNativeWindowInUse:    {"VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "the requested window is already in use"},
	vk.ErrorOutOfDate:            {"VK_ERROR_OUT_OF_DATE_KHR", "the surface changed and the swapchain must be recreated"},
	vk.ErrorIncompatibleDisplay:  {"VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "the display used by the swapchain is incompatible"},
	vk.ErrorOutOfPoolMemory:      {"VK_ERROR_OUT_OF_POOL_MEMORY", "a pool memory allocation has failed"},
	vk.ErrorInvalidExternalHandle: {"VK_ERROR_INVALID_EXTERNAL_HANDLE", "an external handle is not a valid handle of the specified type"},
	vk.ErrorFragmentation:        {"VK_ERROR_FRAGMENTATION", "a descriptor pool creation has failed due to fragmentation"},
	vk.ErrorUnknown:              {"VK_ERROR_UNKNOWN", "an unknown error has occurred"},
}

func VulkanResultString(result vk.Result, getExtended bool) string {
	text, ok := resultStrings[result]
	if !ok {
		return ConditionalOperator(!getExtended, "VK_RESULT_UNKNOWN", "unrecognized result code")
	}
	return ConditionalOperator(!getExtended, text.name, text.name+" "+text.extended)
}

// VulkanResultIsSuccess reports false for every error code, negative results
// are errors.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// VulkanError converts a failed result of op into an error. The results the
// engine recovers from are marked with the matching core sentinel.
func VulkanError(result vk.Result, op string) error {
	if result == vk.Success {
		return nil
	}
	err := errors.Newf("%s failed with %s", op, VulkanResultString(result, true))
	switch result {
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return errors.Mark(err, core.ErrSurfaceOutOfDate)
	case vk.Timeout, vk.NotReady:
		return errors.Mark(err, core.ErrFenceTimeout)
	case vk.ErrorOutOfPoolMemory:
		return errors.Mark(err, core.ErrPoolOutOfMemory)
	case vk.ErrorFragmentedPool:
		return errors.Mark(err, core.ErrFragmentedPool)
	case vk.ErrorDeviceLost:
		return errors.Mark(err, core.ErrDeviceLost)
	}
	return err
}

func ConditionalOperator[T any](condition bool, res1, res2 T) T {
	if condition {
		return res1
	}
	return res2
}

func MathClamp[T constraints.Ordered](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

const end = "\x00"

func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

// cString converts a fixed size name array reported by the driver.
func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}
