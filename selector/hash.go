package selector

import (
	"crypto/sha256"
	"encoding/hex"
)

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:8])
}
