package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// VulkanShaderStage is a shader module together with the stage info that
// plugs it into a pipeline.
type VulkanShaderStage struct {
	Handle                vk.ShaderModule
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderModule(rc *RendererContext, code []uint32, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 {
		return nil, errors.New("empty shader module")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	shader := &VulkanShaderStage{}
	if res := vk.CreateShaderModule(rc.Device.LogicalDevice, &createInfo, rc.Allocator, &shader.Handle); res != vk.Success {
		return nil, VulkanError(res, "vkCreateShaderModule")
	}

	shader.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: shader.Handle,
		PName:  VulkanSafeString("main"),
	}
	return shader, nil
}

func (s *VulkanShaderStage) Destroy(rc *RendererContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(rc.Device.LogicalDevice, s.Handle, rc.Allocator)
		s.Handle = nil
	}
}
