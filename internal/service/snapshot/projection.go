package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/splax/runwatch/internal/domain"
)

// Fallback text when a materialization has no label.
const defaultMaterializationText = "Materialization"

// MalformedMetadataError reports a JSON metadata entry whose stored string
// could not be parsed. It is a hard error, never swallowed.
type MalformedMetadataError struct {
	Label string
	Err   error
}

func (e *MalformedMetadataError) Error() string {
	return fmt.Sprintf("snapshot: metadata entry %q holds invalid JSON: %v", e.Label, e.Err)
}

func (e *MalformedMetadataError) Unwrap() error {
	return e.Err
}

func materializationDisplay(payload domain.MaterializationPayload) (domain.DisplayEvent, error) {
	items, err := displayItems(payload.Entries)
	if err != nil {
		return domain.DisplayEvent{}, err
	}
	text := payload.Label
	if text == "" {
		text = defaultMaterializationText
	}
	return domain.DisplayEvent{Text: text, Icon: domain.IconLink, Items: items}, nil
}

func expectationDisplay(payload domain.ExpectationPayload) (domain.ExpectationResult, error) {
	items, err := displayItems(payload.Entries)
	if err != nil {
		return domain.ExpectationResult{}, err
	}
	result := domain.ExpectationResult{
		DisplayEvent: domain.DisplayEvent{Text: payload.Label, Icon: domain.IconFailure, Items: items},
		Status:       domain.ExpectationFailed,
	}
	if payload.Success {
		result.Icon = domain.IconSuccess
		result.Status = domain.ExpectationPassed
	}
	return result, nil
}

func displayItems(entries []domain.MetadataEntry) ([]domain.DisplayItem, error) {
	items := make([]domain.DisplayItem, 0, len(entries))
	for _, entry := range entries {
		item, ok, err := displayItem(entry)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// displayItem projects one metadata entry into a renderable item. Unknown
// variants report ok=false and are skipped by the caller.
func displayItem(entry domain.MetadataEntry) (domain.DisplayItem, bool, error) {
	item := domain.DisplayItem{Text: entry.Label}
	switch entry.Type {
	case domain.EntryPath:
		item.ActionText = "[Copy Path]"
		item.Action = domain.ItemActionCopy
		item.ActionValue = entry.Path
	case domain.EntryJSON:
		pretty, err := prettyJSON(entry.JSONString)
		if err != nil {
			return domain.DisplayItem{}, false, &MalformedMetadataError{Label: entry.Label, Err: err}
		}
		item.ActionText = "[Show Metadata]"
		item.Action = domain.ItemActionShowInModal
		item.ActionValue = pretty
	case domain.EntryURL:
		item.ActionText = "[Open URL]"
		item.Action = domain.ItemActionOpenInTab
		item.ActionValue = entry.URL
	case domain.EntryText:
		item.ActionText = entry.Text
		item.Action = domain.ItemActionNone
	case domain.EntryCodeRef:
		item.ActionText = fmt.Sprintf("%s:%s - %s", entry.Module, entry.Name, entry.Description)
		item.Action = domain.ItemActionNone
	case domain.EntryMarkdown:
		item.ActionText = "[Show Metadata]"
		item.Action = domain.ItemActionShowInModal
		item.ActionValue = entry.Markdown
	default:
		return domain.DisplayItem{}, false, nil
	}
	return item, true, nil
}

func prettyJSON(raw string) (string, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", err
	}
	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}
