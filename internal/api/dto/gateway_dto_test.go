package dto

import "testing"

func TestNormalizeButtonAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		customID   string
		wantAction string
		wantToken  string
	}{
		{"claim", ActionClaim, ""},
		{"claim-ticket", ActionClaim, ""},
		{"claim_ticket", ActionClaim, ""},
		{"claimTicket", ActionClaim, ""},
		{"CLAIM", ActionClaim, ""},
		{" close-ticket ", ActionClose, ""},
		{"closeTicket", ActionClose, ""},
		{"forward", ActionForward, ""},
		{"forward-ticket", ActionForward, ""},
		{"forward-select:abc-123", ActionForwardSelect, "abc-123"},
		{"forward_select:tok", ActionForwardSelect, "tok"},
		{"delete-everything", "", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.customID, func(t *testing.T) {
			t.Parallel()
			action, token := NormalizeButtonAction(tc.customID)
			if action != tc.wantAction || token != tc.wantToken {
				t.Fatalf("NormalizeButtonAction(%q) = (%q, %q), want (%q, %q)",
					tc.customID, action, token, tc.wantAction, tc.wantToken)
			}
		})
	}
}
