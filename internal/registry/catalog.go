package registry

import (
	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Endpoint paths as they appear on the inbound surface.
const (
	EndpointChat           = "/v1/chat/completions"
	EndpointResponses      = "/v1/responses"
	EndpointEmbeddings     = "/v1/embeddings"
	EndpointSpeech         = "/v1/audio/speech"
	EndpointTranscriptions = "/v1/audio/transcriptions"
	EndpointTranslations   = "/v1/audio/translations"
	EndpointImages         = "/v1/images/generations"
	EndpointImageEdits     = "/v1/images/edits"
	EndpointModerations    = "/v1/moderations"
	EndpointVideos         = "/v1/videos"
)

var (
	chatEndpoints  = []string{EndpointChat, EndpointResponses}
	audioSTT       = []string{EndpointTranscriptions, EndpointTranslations}
	imageEndpoints = []string{EndpointImages, EndpointImageEdits}
)

// builtinCatalog is the shipped model table.
var builtinCatalog = []Model{
	{
		ID: "gpt-4o-mini", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanFree), CostType: CostPerToken,
		BaseCost: 100, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapChat,
	},
	{
		ID: "gpt-4o", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanBasic), CostType: CostPerToken,
		BaseCost: 250, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapChat, DiscountEligible: true,
	},
	{
		ID: "gpt-5", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPremium), CostType: CostPerToken,
		BaseCost: 500, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapChat, DiscountEligible: true,
	},
	{
		ID: "gpt-5-codex", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPremium), CostType: CostPerToken,
		BaseCost: 500, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapResponses,
	},
	{
		ID: "gpt-5.1-codex", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPro), CostType: CostPerToken,
		BaseCost: 600, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapResponses,
	},
	{
		ID: "o3", OwnedBy: "openai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPro), CostType: CostPerToken,
		BaseCost: 600, Multiplier: 1.25, SupportsStreaming: true,
		SupportsToolCalling: true, Capability: gateway.CapChat,
		DiscountEligible: true,
	},
	{
		ID: "claude-opus-4-1-20250805", OwnedBy: "anthropic", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPremium), CostType: CostPerToken,
		BaseCost: 1250, Multiplier: 1.2, SupportsStreaming: true,
		SupportsToolCalling: true, Capability: gateway.CapChat,
		DiscountEligible: true,
	},
	{
		ID: "claude-sonnet-4-5", OwnedBy: "anthropic", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanBasic), CostType: CostPerToken,
		BaseCost: 450, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapChat, DiscountEligible: true,
	},
	{
		ID: "deepinfra/llama-3.3-70b", OwnedBy: "deepinfra", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanFree), CostType: CostPerToken,
		BaseCost: 50, SupportsStreaming: true, Capability: gateway.CapChat,
	},
	{
		ID: "grok-3", OwnedBy: "xai", Endpoints: chatEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPremium), CostType: CostPerToken,
		BaseCost: 300, SupportsStreaming: true, SupportsToolCalling: true,
		Capability: gateway.CapChat, DiscountEligible: true,
	},
	{
		ID: "text-embedding-3-small", OwnedBy: "openai",
		Endpoints: []string{EndpointEmbeddings},
		Plans:     plansAtOrAbove(gateway.PlanFree), CostType: CostPerToken,
		BaseCost: 5, Capability: gateway.CapEmbeddings,
	},
	{
		ID: "text-embedding-3-large", OwnedBy: "openai",
		Endpoints: []string{EndpointEmbeddings},
		Plans:     plansAtOrAbove(gateway.PlanBasic), CostType: CostPerToken,
		BaseCost: 10, Capability: gateway.CapEmbeddings,
	},
	{
		ID: "tts-1", OwnedBy: "openai", Endpoints: []string{EndpointSpeech},
		Plans: plansAtOrAbove(gateway.PlanBasic), CostType: CostFixed,
		BaseCost: 400, Capability: gateway.CapAudio,
	},
	{
		ID: "whisper-1", OwnedBy: "openai", Endpoints: audioSTT,
		Plans: plansAtOrAbove(gateway.PlanBasic), CostType: CostFixed,
		BaseCost: 300, Capability: gateway.CapAudio,
	},
	{
		ID: "gpt-image-1", OwnedBy: "openai", Endpoints: imageEndpoints,
		Plans: plansAtOrAbove(gateway.PlanPremium), CostType: CostFixed,
		BaseCost: 2500, Capability: gateway.CapImages,
	},
	{
		ID: "302/flux-pro", OwnedBy: "tools302", Endpoints: []string{EndpointImages},
		Plans: plansAtOrAbove(gateway.PlanBasic), CostType: CostFixed,
		BaseCost: 2000, Capability: gateway.CapImages,
	},
	{
		ID: "omni-moderation-latest", OwnedBy: "openai",
		Endpoints: []string{EndpointModerations},
		Plans:     plansAtOrAbove(gateway.PlanFree), CostType: CostFixed,
		BaseCost: 0, Capability: gateway.CapModeration,
	},
	{
		ID: "sora-2", OwnedBy: "openai", Endpoints: []string{EndpointVideos},
		Plans: plansAtOrAbove(gateway.PlanUltra), CostType: CostFixed,
		BaseCost: 50_000, Capability: gateway.CapVideos,
	},
}
