package render

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReviewModal(t *testing.T) {
	d := testDraft()
	d.Epic = "GOD-7"
	d.Description = strings.Repeat("d", 4000)

	view := ReviewModal(d, ModalOptions{
		IssueTypes: []string{"Story", "Bug", "Task"},
		Priorities: []string{"Needs Priority", "Highest", "High", "Medium", "Low"},
	})

	if view.CallbackID != "approve_ticket_C1_1700000000.000100" {
		t.Errorf("callback = %q", view.CallbackID)
	}
	if view.PrivateMetadata != d.Key {
		t.Errorf("metadata = %q", view.PrivateMetadata)
	}
	if view.Title.Text != "Review Ticket" || view.Submit.Text != "Create Ticket" || view.Close.Text != "Cancel" {
		t.Errorf("title/submit/close = %q/%q/%q", view.Title.Text, view.Submit.Text, view.Close.Text)
	}

	data, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{
		`"block_id":"title"`,
		`"block_id":"project"`,
		`"block_id":"epic"`,
		`"block_id":"type"`,
		`"block_id":"priority"`,
		`"block_id":"description"`,
		`"optional":true`,
		`"multiline":true`,
		`"initial_value":"GOD-7"`,
		"📎 *1 file(s)* will be attached after creation",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("modal missing %s", want)
		}
	}
	if strings.Contains(got, strings.Repeat("d", DescriptionChars+1)) {
		t.Error("description not truncated")
	}
}

func TestSelectInputUnlistedValue(t *testing.T) {
	el := selectInput("type_select", "Epic", []string{"Story", "Bug"})
	if len(el.Options) != 3 || el.Options[0].Value != "Epic" {
		t.Fatalf("options = %+v", el.Options)
	}
	if el.InitialOption == nil || el.InitialOption.Value != "Epic" {
		t.Errorf("initial = %+v", el.InitialOption)
	}

	el = selectInput("type_select", "Bug", []string{"Story", "Bug"})
	if len(el.Options) != 2 {
		t.Errorf("listed value duplicated: %d options", len(el.Options))
	}
}

func TestKeyFromCallback(t *testing.T) {
	key, ok := KeyFromCallback("approve_ticket_C1_17.5")
	if !ok || key != "C1_17.5" {
		t.Errorf("got %q %v", key, ok)
	}
	if _, ok := KeyFromCallback("approve_ticket_"); ok {
		t.Error("empty key accepted")
	}
	if _, ok := KeyFromCallback("other"); ok {
		t.Error("foreign callback accepted")
	}
}
