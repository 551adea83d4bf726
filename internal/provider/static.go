package provider

import (
	"context"
	"encoding/json"

	"github.com/MimeLyc/dynamic-splash/internal/splash"
)

// Static always returns the same typed input.
func Static(input splash.Input) splash.Provider {
	return splash.ProviderFunc(func(context.Context) ([]byte, error) {
		return json.Marshal(input)
	})
}
