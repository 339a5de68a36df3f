package chatc

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// LatestRef selects the most recently updated conversation.
const LatestRef = "latest"

// AmbiguousNameError is returned when multiple model configurations match a name prefix
type AmbiguousNameError struct {
	Prefix  string
	Matches []ModelConfig
}

func (e *AmbiguousNameError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous configuration name %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		model := ""
		if match.ModelName != nil {
			model = *match.ModelName
		}
		lines = append(lines, fmt.Sprintf("- %d %s (%s)", match.ConfigID, match.DisplayName(), model))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use the configuration ID or run 'chatc configs list'.")
	return strings.Join(lines, "\n")
}

// FindConfig resolves ref against configs.
// A numeric ref matches a config ID exactly; otherwise ref is matched as a
// case-insensitive prefix of the display name. An exact name wins over
// prefix matches.
func FindConfig(configs []ModelConfig, ref string) (*ModelConfig, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("configuration reference is empty")
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for i := range configs {
			if configs[i].ConfigID == id {
				return &configs[i], nil
			}
		}
	}

	var matches []ModelConfig
	for _, c := range configs {
		name := c.DisplayName()
		if strings.EqualFold(name, ref) {
			return &c, nil
		}
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(ref)) {
			matches = append(matches, c)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("configuration not found: %s\n\nRun 'chatc configs list' to see available configurations.", ref)
	}
	if len(matches) > 1 {
		return nil, &AmbiguousNameError{Prefix: ref, Matches: matches}
	}
	return &matches[0], nil
}

// FindConversation resolves ref to a conversation by ID, or to the most
// recently updated one when ref is "latest".
func FindConversation(conversations []Conversation, ref string) (*Conversation, error) {
	if ref == LatestRef {
		latest := LatestConversation(conversations)
		if latest == nil {
			return nil, fmt.Errorf("no conversations found")
		}
		return latest, nil
	}

	id, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID %q", ref)
	}
	for i := range conversations {
		if conversations[i].ConversationID == id {
			return &conversations[i], nil
		}
	}
	return nil, fmt.Errorf("conversation not found: %d\n\nRun 'chatc conversations list' to see available conversations.", id)
}

// LatestConversation returns the most recently updated conversation, or nil.
func LatestConversation(conversations []Conversation) *Conversation {
	if len(conversations) == 0 {
		return nil
	}
	sorted := SortConversations(conversations)
	for i := range conversations {
		if conversations[i].ConversationID == sorted[0].ConversationID {
			return &conversations[i]
		}
	}
	return nil
}

// SortConversations returns a copy ordered by update time, newest first.
// Ties fall back to the higher conversation ID.
func SortConversations(conversations []Conversation) []Conversation {
	sorted := slices.Clone(conversations)
	slices.SortStableFunc(sorted, func(a, b Conversation) int {
		if c := b.UpdatedAt().Compare(a.UpdatedAt()); c != 0 {
			return c
		}
		switch {
		case a.ConversationID > b.ConversationID:
			return -1
		case a.ConversationID < b.ConversationID:
			return 1
		}
		return 0
	})
	return sorted
}
