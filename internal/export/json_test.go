package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lotas/laterread/internal/types"
)

func TestJSON_Structure(t *testing.T) {
	items := sampleItems()
	items[0].Favicon = "https://go.dev/favicon.ico"
	items[0].ScrollPosition = 900

	result, err := JSON(items, exportNow)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var out jsonExport
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, result)
	}
	if out.Count != 3 {
		t.Errorf("count = %d", out.Count)
	}
	if !out.ExportedAt.Equal(exportNow) {
		t.Errorf("exported_at = %v", out.ExportedAt)
	}
	if len(out.Sites) != 2 || out.Sites[0].Domain != "go.dev" || out.Sites[1].Domain != "github.com" {
		t.Fatalf("sites = %+v", out.Sites)
	}

	docs := out.Sites[0].Items[1]
	if docs.ID != "id_1" || docs.ScrollPosition != 900 || docs.Favicon != "https://go.dev/favicon.ico" {
		t.Errorf("item = %+v", docs)
	}
	if docs.SavedDays != 3 || docs.SavedAtPretty != "3 days ago" {
		t.Errorf("age = %d, %q", docs.SavedDays, docs.SavedAtPretty)
	}
	if !docs.SavedAt.Equal(exportNow.Add(-3 * 24 * time.Hour)) {
		t.Errorf("saved_at = %v", docs.SavedAt)
	}
}

func TestJSON_DefaultTitle(t *testing.T) {
	items := []types.SavedItem{{ID: "id_1", URL: "https://a.test", Timestamp: exportNow.UnixMilli()}}
	result, err := JSON(items, exportNow)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out jsonExport
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got := out.Sites[0].Items[0].Title; got != types.DefaultTitle {
		t.Errorf("title = %q", got)
	}
	if got := out.Sites[0].Items[0].SavedAtPretty; got != "just now" {
		t.Errorf("pretty = %q", got)
	}
}

func TestJSON_EmptyList(t *testing.T) {
	result, err := JSON(nil, exportNow)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	sites, ok := out["sites"].([]any)
	if !ok || len(sites) != 0 {
		t.Errorf("sites = %#v, want empty array", out["sites"])
	}
}
