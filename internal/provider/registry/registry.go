package registry

import (
	"fmt"

	"github.com/carebrief/carebrief-backend/internal/config"
	"github.com/carebrief/carebrief-backend/internal/platform/logger"
	"github.com/carebrief/carebrief-backend/internal/provider"
	"github.com/carebrief/carebrief-backend/internal/provider/gemini"
	"github.com/carebrief/carebrief-backend/internal/provider/mock"
	"github.com/carebrief/carebrief-backend/internal/provider/openaichat"
)

// BuildChain constructs the configured provider chain in order. The chain
// order is the fallback order.
func BuildChain(cfgs []config.ProviderConfig, log *logger.Logger) ([]provider.Slot, error) {
	slots := make([]provider.Slot, 0, len(cfgs))
	for _, pc := range cfgs {
		var p provider.Provider
		switch pc.Type {
		case config.ProviderTypeGemini:
			p = gemini.New(pc, log)
		case config.ProviderTypeOpenAIChat:
			p = openaichat.New(pc, log)
		case config.ProviderTypeMock:
			p = mock.New(pc.Name)
		default:
			return nil, fmt.Errorf("unsupported provider type %q for %q", pc.Type, pc.Name)
		}
		slots = append(slots, provider.Slot{Provider: p, Timeout: pc.Timeout.Duration})
	}
	return slots, nil
}
