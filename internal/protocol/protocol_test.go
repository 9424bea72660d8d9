package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lotas/laterread/internal/types"
)

func TestReplyKeepsSeq(t *testing.T) {
	req := Message{Seq: "req-7", Action: ActionRemove, ID: "id_1"}
	resp := Reply(req).Succeeded()
	if resp.Seq != "req-7" || resp.Action != ActionResponse || !resp.OK() {
		t.Errorf("unexpected reply %+v", resp)
	}

	failed := Reply(req).Failed(errors.New("quota exceeded"))
	if failed.OK() || failed.Error != "quota exceeded" {
		t.Errorf("unexpected failure %+v", failed)
	}
}

func TestOKWithoutSuccessField(t *testing.T) {
	if (Message{}).OK() {
		t.Error("missing success must not count as ok")
	}
}

func TestRequestWireFormat(t *testing.T) {
	raw := `{"seq":"1","action":"saveLaterRead","data":{"url":"https://a.test","title":"A","favicon":"https://a.test/f.ico","scrollPosition":120}}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Action != ActionSave || m.Data == nil || m.Data.ScrollPosition != 120 {
		t.Errorf("decoded %+v", m)
	}
}

func TestItemsUpdatedNeverNil(t *testing.T) {
	m := ItemsUpdated(nil)
	if m.Items == nil {
		t.Error("items should be an empty slice")
	}
	data, _ := json.Marshal(ItemsUpdated([]types.SavedItem{{ID: "id_1", URL: "https://a.test"}}))
	if !strings.Contains(string(data), `"action":"laterReadItemsUpdated"`) || !strings.Contains(string(data), `"id_1"`) {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestEmptyItemsStayOnTheWire(t *testing.T) {
	data, err := json.Marshal(ItemsUpdated(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"items":[]`) {
		t.Errorf("empty broadcast lost its items: %s", data)
	}

	data, _ = json.Marshal(Reply(Message{Seq: "3", Action: ActionRemove}).Succeeded())
	if strings.Contains(string(data), `"items"`) {
		t.Errorf("reply without a list should omit items: %s", data)
	}

	var back Message
	if err := json.Unmarshal([]byte(`{"seq":"4","action":"response","success":true,"items":[]}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Items == nil || len(back.Items) != 0 {
		t.Errorf("items = %#v", back.Items)
	}
}
