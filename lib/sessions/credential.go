package sessions

import (
	"fmt"
	"strings"
)

// Bunker sessions persist two values in one credential string. The pipe is
// safe because neither a hex key nor a bunker:// URI contains one.
const bunkerCredentialSep = "|"

// BunkerCredential packs a client secret and bunker URL for persistence.
func BunkerCredential(clientSecret, bunkerURL string) string {
	return clientSecret + bunkerCredentialSep + bunkerURL
}

func splitBunkerCredential(credential string) (clientSecret, bunkerURL string, err error) {
	parts := strings.SplitN(credential, bunkerCredentialSep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed bunker credential")
	}
	return parts[0], parts[1], nil
}
