package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultParam is the query parameter screener.in uses for the result page
const DefaultParam = "page"

// PageURL returns baseURL with the page parameter set to page.
// The existing query is kept byte for byte in its order, only an earlier page
// parameter is dropped before the new one is appended.
func PageURL(baseURL string, param string, page int) (string, error) {
	if param == "" {
		param = DefaultParam
	}
	if page < 1 {
		return "", fmt.Errorf("invalid page number: %d", page)
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	var parts []string
	if parsedURL.RawQuery != "" {
		for _, part := range strings.Split(parsedURL.RawQuery, "&") {
			if part == "" || queryKey(part) == param {
				continue
			}
			parts = append(parts, part)
		}
	}
	parts = append(parts, url.QueryEscape(param)+"="+strconv.Itoa(page))

	newParsedURL := *parsedURL
	newParsedURL.RawQuery = strings.Join(parts, "&")
	newParsedURL.ForceQuery = false
	return newParsedURL.String(), nil
}

func queryKey(part string) string {
	key, _, _ := strings.Cut(part, "=")
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}
	return key
}
