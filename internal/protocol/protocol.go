// Package protocol defines the JSON messages exchanged between the
// coordinator, page contexts, popups and the browser extension host.
package protocol

import (
	"encoding/json"

	"github.com/lotas/laterread/internal/types"
)

// Requests answered by the coordinator.
const (
	ActionSave   = "saveLaterRead"
	ActionList   = "getLaterReadItems"
	ActionRemove = "removeLaterReadItem"
	ActionOpen   = "openLaterReadItem"
	ActionClear  = "clearAllLaterReadItems"
)

// Notifications pushed to page contexts. No response is expected.
const (
	ActionItemsUpdated = "laterReadItemsUpdated"
	ActionCheckItems   = "checkLaterReadItems"
)

// Connection management and replies.
const (
	ActionHello    = "hello"
	ActionResponse = "response"
)

// Commands sent to the extension host and the events it reports.
const (
	HostTabsCreate = "tabs.create"
	HostTabsRemove = "tabs.remove"
	HostTabsActive = "tabs.active"
	HostReadScroll = "page.readScroll"
	HostScrollTo   = "page.scrollTo"
	HostFavicon    = "page.favicon"

	HostTabCreated = "tabs.created"
)

// Roles a connection announces in its hello.
const (
	RolePage  = "page"
	RolePopup = "popup"
	RoleHost  = "host"
)

// Tab identifies a browser page.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Message is the single envelope used in both directions. Seq correlates a
// response with its request; it is empty on notifications.
type Message struct {
	Seq    string `json:"seq,omitempty"`
	Action string `json:"action"`

	// Request fields
	Data     *types.Candidate `json:"data,omitempty"`
	ID       string           `json:"id,omitempty"`
	Item     *types.SavedItem `json:"item,omitempty"`
	Settings *types.Settings  `json:"settings,omitempty"`

	// Hello and host fields
	Role    string `json:"role,omitempty"`
	TabID   int    `json:"tabId,omitempty"`
	URL     string `json:"url,omitempty"`
	ScrollY int    `json:"scrollY,omitempty"`
	Favicon string `json:"favicon,omitempty"`

	// Response fields
	Success *bool             `json:"success,omitempty"`
	Error   string            `json:"error,omitempty"`
	Items   []types.SavedItem `json:"items,omitempty"`
	Tab     *Tab              `json:"tab,omitempty"`
}

// MarshalJSON omits items only when the list was never set, so an empty
// list still goes out as "items":[].
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Items == nil {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		plain
		Items []types.SavedItem `json:"items"`
	}{plain(m), m.Items})
}

// OK reports whether a response carries success=true.
func (m Message) OK() bool {
	return m.Success != nil && *m.Success
}

// Reply builds a response to req.
func Reply(req Message) Message {
	return Message{Seq: req.Seq, Action: ActionResponse}
}

// Succeeded marks m successful.
func (m Message) Succeeded() Message {
	ok := true
	m.Success = &ok
	return m
}

// Failed marks m failed with err.
func (m Message) Failed(err error) Message {
	ok := false
	m.Success = &ok
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// ItemsUpdated is the broadcast sent after every change to the list.
func ItemsUpdated(items []types.SavedItem) Message {
	if items == nil {
		items = []types.SavedItem{}
	}
	return Message{Action: ActionItemsUpdated, Items: items}
}

// CheckItems asks a page context to refresh its widget.
func CheckItems() Message {
	return Message{Action: ActionCheckItems}
}
