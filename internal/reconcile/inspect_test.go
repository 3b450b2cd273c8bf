package reconcile

import (
	"testing"

	"bracket-trader/internal/models"
)

func TestInspect(t *testing.T) {
	tests := []struct {
		sl, tg string
		want   Action
	}{
		{"TRIGGER PENDING", "OPEN", ActionNone},
		{"COMPLETE", "OPEN", ActionCancelTarget},
		{"TRIGGER PENDING", "COMPLETE", ActionCancelStopLoss},
		{"COMPLETE", "CANCELLED", ActionClose},
		{"CANCELLED", "REJECTED", ActionClose},
		{"COMPLETE", "COMPLETE", ActionBreach},
		{"COMPLETE", "", ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.sl+"/"+tt.tg, func(t *testing.T) {
			g := protectedGroup("g1")
			snapshot := rows(g, tt.sl, tt.tg)
			if tt.tg == "" {
				snapshot = snapshot[:2]
			}

			findings := Inspect([]models.BracketGroup{*g}, snapshot)
			if len(findings) != 1 {
				t.Fatalf("got %d findings", len(findings))
			}
			if findings[0].Action != tt.want {
				t.Errorf("action = %s, want %s", findings[0].Action, tt.want)
			}
			if findings[0].Entry != models.LegFilled {
				t.Errorf("entry status = %s", findings[0].Entry)
			}
			if g.State != models.GroupProtected {
				t.Error("Inspect must not change the group")
			}
		})
	}
}

func TestInspect_UnprotectedGroupHasNoAction(t *testing.T) {
	g := protectedGroup("g1")
	g.Target = nil
	g.State = models.GroupDegraded

	findings := Inspect([]models.BracketGroup{*g}, []models.OrderRow{
		{OrderID: g.StopLoss.OrderID, Status: "COMPLETE"},
	})
	if findings[0].Action != ActionNone {
		t.Errorf("action = %s", findings[0].Action)
	}
	if findings[0].Target != models.LegPending {
		t.Errorf("missing target status = %s", findings[0].Target)
	}
}
