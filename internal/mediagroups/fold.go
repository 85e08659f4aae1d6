package mediagroups

import (
	"chanqueue-bot/internal/queue"
)

// Fold turns a finalized group into queue items.
//
// A lone part becomes a single post with its own caption. Several parts with at least one caption
// become one album signed with signature. Several uncaptioned parts become independent posts.
func Fold(parts []Part, signature string) ([]queue.Item, error) {
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		p := parts[0]
		return []queue.Item{queue.NewSingle(p.Attachment, p.Caption, p.SenderID)}, nil
	}

	hasCaption := false
	for _, p := range parts {
		if p.Caption != "" {
			hasCaption = true
			break
		}
	}

	if !hasCaption {
		items := make([]queue.Item, 0, len(parts))
		for _, p := range parts {
			items = append(items, queue.NewSingle(p.Attachment, "", p.SenderID))
		}
		return items, nil
	}

	attachments := make([]queue.Attachment, 0, len(parts))
	senders := make([]int64, 0, len(parts))
	for _, p := range parts {
		attachments = append(attachments, p.Attachment)
		senders = append(senders, p.SenderID)
	}
	group, err := queue.NewGroup(attachments, signature, senders...)
	if err != nil {
		return nil, err
	}
	return []queue.Item{group}, nil
}
