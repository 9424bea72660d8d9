package analyzer

import (
	"net/url"
	"sort"
	"strings"
)

func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}

// AnalyzeDuplicates marks pages saved more than once, comparing normalized
// URLs. Saving the same page twice is allowed; this only reports it.
func AnalyzeDuplicates(reports []*Report) {
	groups := make(map[string][]int)
	for i, r := range reports {
		normalized := NormalizeURL(r.Item.URL)
		groups[normalized] = append(groups[normalized], i)
	}
	for _, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		for _, i := range indices {
			reports[i].Duplicate = true
			var others []string
			for _, j := range indices {
				if j != i {
					others = append(others, reports[j].Item.ID)
				}
			}
			reports[i].DuplicateOf = others
		}
	}
}
