package server

import (
	"net/url"
	"os"
)

func urlQuery(s string) string {
	return url.QueryEscape(s)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
