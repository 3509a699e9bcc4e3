package research

import (
	"errors"
	"net/url"
	"strings"
)

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
