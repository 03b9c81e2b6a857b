package resource

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// The preview page wires up its viewer with an inline script that
// carries three values, serialized as JSON-style string literals:
//
//	"FormAction":"https://wopi.../contents?...WOPISrc=https\x253a\x252f\x252f..."
//	"AccessToken":"eyJ0eXAi..."
//	"AccessTokenTtl":"86400"
//
// These literal substrings are the version-sensitive contract with the
// remote service. office_test.go keeps fixtures of the exact shapes.
var (
	formActionRegex     = regexp.MustCompile(`"FormAction":"([^"]+)"`)
	accessTokenRegex    = regexp.MustCompile(`"AccessToken":"([^"]+)"`)
	accessTokenTtlRegex = regexp.MustCompile(`"AccessTokenTtl":"?(\d+)"?`)
)

type officePreview struct {
	FormAction  string
	AccessToken string
	// seconds, currently unused beyond being parsed
	TokenTtl int64
}

func parseOfficePreview(body string) (officePreview, error) {
	groups := formActionRegex.FindStringSubmatch(body)
	if len(groups) < 2 {
		return officePreview{}, errors.New("FormAction script value")
	}
	preview := officePreview{FormAction: groups[1]}

	groups = accessTokenRegex.FindStringSubmatch(body)
	if len(groups) < 2 {
		return officePreview{}, errors.New("AccessToken script value")
	}
	preview.AccessToken = groups[1]

	groups = accessTokenTtlRegex.FindStringSubmatch(body)
	if len(groups) >= 2 {
		ttl, err := strconv.ParseInt(groups[1], 10, 64)
		if err == nil {
			preview.TokenTtl = ttl
		}
	}

	return preview, nil
}

// DownloadUrl derives the document's content endpoint from the WOPISrc
// parameter of the viewer form action. The source URL arrives with its
// scheme separator hex-escaped for embedding in script text.
func (p officePreview) DownloadUrl() (string, error) {
	action, err := url.Parse(p.FormAction)
	if err != nil {
		return "", errors.New("parseable FormAction url")
	}
	wopiSrc := action.Query().Get("WOPISrc")
	if wopiSrc == "" {
		return "", errors.New("WOPISrc parameter in FormAction url")
	}

	wopiSrc = strings.ReplaceAll(wopiSrc, `\x253a`, ":")
	wopiSrc = strings.ReplaceAll(wopiSrc, `\x252f`, "/")

	return fmt.Sprintf("%s/contents?access_token=%s", wopiSrc, p.AccessToken), nil
}
