package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type DeadLinkResult struct {
	Index  int
	IsDead bool
	Reason string
}

var skipPrefixes = []string{"about:", "moz-extension:", "chrome-extension:", "file:", "chrome:", "resource:", "data:"}

func shouldSkip(url string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// AnalyzeDeadLinks sends a HEAD request to every http(s) page, ten at a
// time, and marks 404, 410 and unreachable pages dead. A result is sent
// for every checked report.
func AnalyzeDeadLinks(ctx context.Context, reports []*Report, results chan<- DeadLinkResult) {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for i, r := range reports {
		if shouldSkip(r.Item.URL) {
			continue
		}

		wg.Add(1)
		go func(idx int, r *Report) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := DeadLinkResult{Index: idx}
			mark := func(reason string) {
				result.IsDead = true
				result.Reason = reason
				r.Dead = true
				r.DeadReason = reason
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.Item.URL, nil)
			if err != nil {
				mark("invalid URL")
				results <- result
				return
			}

			resp, err := client.Do(req)
			if err != nil {
				if ctx.Err() == nil {
					mark("unreachable")
				}
				results <- result
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
				mark(fmt.Sprintf("%d", resp.StatusCode))
			}
			results <- result
		}(i, r)
	}

	wg.Wait()
}
