package vault

import (
	"fmt"
	"path"
	"strings"
)

// metadataKey returns the key for an account/name pair. name may contain
// slashes, e.g. "images/<id>.json".
func metadataKey(account, name string) string {
	return account + "/" + name
}

// validateName rejects metadata names that would escape the account's area.
func validateName(account, name string) error {
	if account == "" || strings.ContainsAny(account, `/\`) {
		return fmt.Errorf("invalid account %q", account)
	}
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid metadata name %q", name)
	}
	if clean := path.Clean(name); clean != name || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid metadata name %q", name)
	}
	return nil
}
