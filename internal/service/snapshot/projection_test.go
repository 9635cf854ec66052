package snapshot

import (
	"testing"

	"github.com/splax/runwatch/internal/domain"
)

func TestDisplayItemPath(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryPath, Label: "output", Path: "/tmp/out.parquet",
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if item.Text != "output" || item.ActionText != "[Copy Path]" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Action != domain.ItemActionCopy || item.ActionValue != "/tmp/out.parquet" {
		t.Fatalf("unexpected action: %+v", item)
	}
}

func TestDisplayItemJSONPrettyPrints(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryJSON, Label: "stats", JSONString: `{"a":1}`,
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	want := "{\n  \"a\": 1\n}"
	if item.ActionValue != want {
		t.Fatalf("expected pretty JSON %q, got %q", want, item.ActionValue)
	}
	if item.ActionText != "[Show Metadata]" || item.Action != domain.ItemActionShowInModal {
		t.Fatalf("unexpected action: %+v", item)
	}
}

func TestDisplayItemJSONInvalid(t *testing.T) {
	_, _, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryJSON, Label: "stats", JSONString: `{"a":`,
	})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	metaErr, ok := err.(*MalformedMetadataError)
	if !ok {
		t.Fatalf("expected MalformedMetadataError, got %T", err)
	}
	if metaErr.Label != "stats" {
		t.Fatalf("unexpected label %q", metaErr.Label)
	}
}

func TestDisplayItemURL(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryURL, Label: "dashboard", URL: "https://example.com/d/1",
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if item.ActionText != "[Open URL]" || item.Action != domain.ItemActionOpenInTab || item.ActionValue != "https://example.com/d/1" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestDisplayItemText(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryText, Label: "rows", Text: "14500",
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if item.ActionText != "14500" || item.Action != domain.ItemActionNone || item.ActionValue != "" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestDisplayItemCodeRef(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryCodeRef, Label: "source",
		Module: "etl.jobs", Name: "daily_load", Description: "entry point",
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if item.ActionText != "etl.jobs:daily_load - entry point" {
		t.Fatalf("unexpected action text %q", item.ActionText)
	}
	if item.Action != domain.ItemActionNone {
		t.Fatalf("unexpected action %q", item.Action)
	}
}

func TestDisplayItemMarkdown(t *testing.T) {
	item, ok, err := displayItem(domain.MetadataEntry{
		Type: domain.EntryMarkdown, Label: "notes", Markdown: "# Report",
	})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if item.ActionText != "[Show Metadata]" || item.Action != domain.ItemActionShowInModal || item.ActionValue != "# Report" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestDisplayItemsSkipsUnknownVariants(t *testing.T) {
	items, err := displayItems([]domain.MetadataEntry{
		{Type: domain.EntryType("float"), Label: "ignored"},
		{Type: domain.EntryText, Label: "kept", Text: "value"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Text != "kept" {
		t.Fatalf("expected only the known entry, got %+v", items)
	}
}

func TestMaterializationDisplayDefaults(t *testing.T) {
	display, err := materializationDisplay(domain.MaterializationPayload{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if display.Text != defaultMaterializationText || display.Icon != domain.IconLink {
		t.Fatalf("unexpected display: %+v", display)
	}
	if len(display.Items) != 0 {
		t.Fatalf("expected no items, got %+v", display.Items)
	}
}

func TestExpectationDisplayStatus(t *testing.T) {
	pass, err := expectationDisplay(domain.ExpectationPayload{Success: true, Label: "schema"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pass.Status != domain.ExpectationPassed || pass.Icon != domain.IconSuccess {
		t.Fatalf("unexpected passing result: %+v", pass)
	}

	fail, err := expectationDisplay(domain.ExpectationPayload{Success: false, Label: "schema"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fail.Status != domain.ExpectationFailed || fail.Icon != domain.IconFailure {
		t.Fatalf("unexpected failing result: %+v", fail)
	}
}
