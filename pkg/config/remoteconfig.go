package config

import (
	"context"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azappconfig"
)

// RemoteConfigSource optionally augments environment-sourced settings from
// a centrally managed store. It is an enrichment layer, not a hard
// dependency: a source that cannot be reached should be logged and
// ignored, never treated as a startup failure.
type RemoteConfigSource interface {
	// RosterOverrides fetches any phase roster overrides published to the
	// remote store, keyed by phase name, in the same shape rosters.yaml
	// uses. An empty map with a nil error means the store was reachable but
	// had nothing published.
	RosterOverrides(ctx context.Context) (map[string]RosterConfig, error)
}

// appConfigSource is the RemoteConfigSource backed by Azure App
// Configuration.
type appConfigSource struct {
	client *azappconfig.Client
}

// NewAppConfigSource builds a RemoteConfigSource against the App
// Configuration store at endpoint. A nil return with an error means the
// store could not be dialed; callers should log and continue without
// remote augmentation rather than failing startup.
func NewAppConfigSource(endpoint string, cred azcore.TokenCredential) (RemoteConfigSource, error) {
	client, err := azappconfig.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, err
	}
	return &appConfigSource{client: client}, nil
}

// rosterOverrideKeyPrefix namespaces this engine's settings within a
// shared App Configuration store.
const rosterOverrideKeyPrefix = "aks-migrator/rosters/"

// RosterOverrides lists every "aks-migrator/rosters/<phase>" setting in the
// store, whatever the phase name, and decodes each YAML-shaped value into a
// RosterConfig override. A phase with no key is not an error; that phase
// simply has no remote override.
func (s *appConfigSource) RosterOverrides(ctx context.Context) (map[string]RosterConfig, error) {
	overrides := make(map[string]RosterConfig)

	pager := s.client.NewListSettingsPager(azappconfig.SettingSelector{
		KeyFilter: toPtr(rosterOverrideKeyPrefix + "*"),
	}, nil)

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return overrides, err
		}
		for _, setting := range page.Settings {
			if setting.Key == nil || setting.Value == nil {
				continue
			}
			phase := (*setting.Key)[len(rosterOverrideKeyPrefix):]
			var roster RosterConfig
			if err := yamlUnmarshalString(*setting.Value, &roster); err != nil {
				slog.Warn("ignoring malformed remote roster override", "phase", phase, "error", err)
				continue
			}
			overrides[phase] = roster
		}
	}

	return overrides, nil
}

func toPtr[T any](v T) *T { return &v }
