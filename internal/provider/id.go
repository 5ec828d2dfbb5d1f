package provider

import (
	"strings"

	"achievement-sync/internal/library"
)

// GameAppID extracts the provider-native id from a library game id of the
// form "source:nativeID". Ids without a source prefix are returned as-is.
func GameAppID(g library.Game) string {
	if i := strings.IndexByte(g.ID, ':'); i >= 0 {
		return g.ID[i+1:]
	}
	return g.ID
}
