package wizard

import "github.com/The-Noona-Project/noona-warden/pkg/types"

// stepMetadata describes the four wizard steps for UI consumption
var stepMetadata = []types.StepMetadata{
	{
		ID:           types.StepFoundation,
		Title:        "Foundation",
		Description:  "Install the core Noona services: cache, database, vault, API and UI.",
		Icon:         "foundation",
		Capabilities: []string{"install", "reset", "broadcast"},
	},
	{
		ID:           types.StepPortal,
		Title:        "Discord Portal",
		Description:  "Connect the Discord integration so members can interact with the library.",
		Optional:     true,
		Icon:         "portal",
		Capabilities: []string{"install", "reset", "broadcast"},
	},
	{
		ID:           types.StepRaven,
		Title:        "Raven Downloader",
		Description:  "Set up the downloader and link it to an existing Kavita library.",
		Optional:     true,
		Icon:         "raven",
		Capabilities: []string{"install", "reset", "broadcast", "detect-mount"},
	},
	{
		ID:           types.StepVerification,
		Title:        "Verification",
		Description:  "Confirm every installed service is healthy and finish setup.",
		Icon:         "verification",
		Capabilities: []string{"complete"},
	},
}

// featureFlags advertises optional wizard capabilities to the UI
var featureFlags = map[string]bool{
	"timeline":    true,
	"broadcast":   true,
	"stepReset":   true,
	"mountDetect": true,
}

// Metadata returns the step descriptions and feature flags served by
// the metadata endpoint
func Metadata() ([]types.StepMetadata, map[string]bool) {
	steps := make([]types.StepMetadata, len(stepMetadata))
	copy(steps, stepMetadata)

	features := make(map[string]bool, len(featureFlags))
	for k, v := range featureFlags {
		features[k] = v
	}
	return steps, features
}
