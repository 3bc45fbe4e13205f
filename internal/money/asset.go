package money

import (
	"fmt"
	"sync"
)

// Asset represents a token with its ledger properties.
type Asset struct {
	Code     string // Asset code (MUSD, USDC, HBAR)
	Decimals uint8  // Number of decimal places (6 for MUSD/USDC, 8 for HBAR)
	TokenID  string // Hedera token ID ("0.0.x"), empty for HBAR
}

// Global asset registry with concurrent access protection.
var (
	assetRegistry = map[string]Asset{
		"MUSD": {
			Code:     "MUSD",
			Decimals: 6,
		},
		"USDC": {
			Code:     "USDC",
			Decimals: 6,
		},
		"HBAR": {
			Code:     "HBAR",
			Decimals: 8, // tinybars
		},
	}
	assetRegistryMu sync.RWMutex
)

// GetAsset retrieves an asset from the registry.
func GetAsset(code string) (Asset, error) {
	assetRegistryMu.RLock()
	asset, ok := assetRegistry[code]
	assetRegistryMu.RUnlock()
	if !ok {
		return Asset{}, fmt.Errorf("money: unknown asset %q", code)
	}
	return asset, nil
}

// MustGetAsset retrieves an asset or panics. For use in tests and init paths
// where the asset is known to exist.
func MustGetAsset(code string) Asset {
	asset, err := GetAsset(code)
	if err != nil {
		panic(err)
	}
	return asset
}

// RegisterAsset adds or replaces an asset in the registry. Deployments
// configure token IDs and decimals at startup before any settlement runs.
func RegisterAsset(asset Asset) error {
	if asset.Code == "" {
		return fmt.Errorf("money: asset code required")
	}
	assetRegistryMu.Lock()
	assetRegistry[asset.Code] = asset
	assetRegistryMu.Unlock()
	return nil
}
