package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// document is the single JSON object persisted to IRC_STATE_PATH. Its
// top-level keys mirror the §3 entities, per §6 "Persisted state layout".
type document struct {
	Devices           map[string]Device            `json:"devices"`
	Aliases           map[string]Alias              `json:"aliases"`
	Sessions          map[string]Session            `json:"sessions"`
	Channels          map[string]Channel            `json:"channels"`
	ChannelMembers    map[string]map[string]Membership `json:"channelMembers"`
	DMConversations   map[string]DMConversation     `json:"dmConversations"`
	Messages          []Message                     `json:"messages"`
	ModerationActions []ModerationAction             `json:"moderationActions"`
	BotApps           map[string]Bot                `json:"botApps"`
	AuditEvents       []AuditEvent                   `json:"auditEvents"`
}

func emptyDocument() document {
	return document{
		Devices:         make(map[string]Device),
		Aliases:         make(map[string]Alias),
		Sessions:        make(map[string]Session),
		Channels:        make(map[string]Channel),
		ChannelMembers:  make(map[string]map[string]Membership),
		DMConversations: make(map[string]DMConversation),
		BotApps:         make(map[string]Bot),
	}
}

// load reads the document at path. A missing file or one that fails to
// parse resets to empty state (§4.2, and the open question in §9.5: this
// implementation keeps the teacher's lenient "reset on corruption" policy
// rather than refusing to start).
func load(path string) (document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("store: failed to read state file %s: %v (starting empty)", path, err)
		}
		return emptyDocument(), false
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("store: state file %s is corrupt: %v (starting empty)", path, err)
		return emptyDocument(), false
	}

	if doc.Devices == nil {
		doc.Devices = make(map[string]Device)
	}
	if doc.Aliases == nil {
		doc.Aliases = make(map[string]Alias)
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]Session)
	}
	if doc.Channels == nil {
		doc.Channels = make(map[string]Channel)
	}
	if doc.ChannelMembers == nil {
		doc.ChannelMembers = make(map[string]map[string]Membership)
	}
	if doc.DMConversations == nil {
		doc.DMConversations = make(map[string]DMConversation)
	}
	if doc.BotApps == nil {
		doc.BotApps = make(map[string]Bot)
	}
	return doc, true
}

// writeAtomic serializes doc and replaces path via a temp-file-then-rename,
// so a crash mid-write never leaves a truncated document (the "rename-based
// atomic write" recommended in §9.1).
func writeAtomic(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
