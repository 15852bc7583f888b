package domain

import "testing"

func TestEncodeParseTopic(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		ownerID     string
		claimerID   string
		wantEncoded string
	}{
		{
			name:        "unclaimed",
			ownerID:     "482991",
			claimerID:   "",
			wantEncoded: "ticket_owner:482991",
		},
		{
			name:        "claimed",
			ownerID:     "482991",
			claimerID:   "771204",
			wantEncoded: "ticket_owner:482991|claimed_by:771204",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			encoded := EncodeTopic(test.ownerID, test.claimerID)
			if encoded != test.wantEncoded {
				t.Fatalf("EncodeTopic: got %q, want %q", encoded, test.wantEncoded)
			}
			owner, claimer := ParseTopic(encoded)
			if owner != test.ownerID {
				t.Errorf("owner: got %q, want %q", owner, test.ownerID)
			}
			if claimer != test.claimerID {
				t.Errorf("claimer: got %q, want %q", claimer, test.claimerID)
			}
		})
	}
}

func TestParseTopicForeignText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		topic       string
		wantOwner   string
		wantClaimer string
	}{
		{name: "empty", topic: "", wantOwner: "", wantClaimer: ""},
		{name: "unrelated topic", topic: "general chat", wantOwner: "", wantClaimer: ""},
		{name: "owner embedded in prose", topic: "support case ticket_owner:42|claimed_by:9000 do not edit", wantOwner: "42", wantClaimer: "9000"},
		{name: "claimer only", topic: "claimed_by:9000", wantOwner: "", wantClaimer: "9000"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			owner, claimer := ParseTopic(test.topic)
			if owner != test.wantOwner {
				t.Errorf("owner: got %q, want %q", owner, test.wantOwner)
			}
			if claimer != test.wantClaimer {
				t.Errorf("claimer: got %q, want %q", claimer, test.wantClaimer)
			}
		})
	}
}

func TestTicketName(t *testing.T) {
	t.Parallel()
	if got := TicketName(17); got != "ticket-17" {
		t.Fatalf("TicketName: got %q", got)
	}
	if !IsTicketChannelName("ticket-17") {
		t.Error("ticket-17 should be recognized as a ticket channel")
	}
	if IsTicketChannelName("general") {
		t.Error("general should not be recognized as a ticket channel")
	}
}
