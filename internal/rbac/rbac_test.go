package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		caps   Capabilities
		action Action
		allow  bool
	}{
		{name: "nothing edit members", caps: Capabilities{}, action: ActionEditMembers, allow: false},
		{name: "create users edit members", caps: Capabilities{CanCreateUsers: true}, action: ActionEditMembers, allow: true},
		{name: "create users add member", caps: Capabilities{CanCreateUsers: true}, action: ActionAddMember, allow: true},
		{name: "create users remove member", caps: Capabilities{CanCreateUsers: true}, action: ActionRemoveMember, allow: false},
		{name: "edit users remove member", caps: Capabilities{CanEditUsers: true}, action: ActionRemoveMember, allow: true},
		{name: "manage remove member", caps: Capabilities{CanManageProject: true}, action: ActionRemoveMember, allow: true},
		{name: "manage create user", caps: Capabilities{CanManageProject: true}, action: ActionCreateUser, allow: false},
		{name: "delete users", caps: Capabilities{CanDeleteUsers: true}, action: ActionDeleteUser, allow: true},
		{name: "reports", caps: Capabilities{CanViewReports: true}, action: ActionViewReports, allow: true},
		{name: "unknown action", caps: Capabilities{CanManageProject: true, CanEditUsers: true}, action: Action("launch"), allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.caps, tc.action); got != tc.allow {
				t.Fatalf("Can(%+v, %q) = %v, want %v", tc.caps, tc.action, got, tc.allow)
			}
		})
	}
}

func TestGateFailsClosedWithoutRow(t *testing.T) {
	gate := NewGate([]Capabilities{{ProjectID: "p1", CanManageProject: true}})

	if !gate.Can("p1", ActionRemoveMember) {
		t.Fatal("expected p1 manager to remove members")
	}
	if gate.Can("p2", ActionEditMembers) {
		t.Fatal("expected no affordances on a project without a row")
	}
	if got := gate.Affordances("p2"); got.EditMembers || got.AddMember || got.RemoveMember || got.CreateUser {
		t.Fatalf("expected empty affordances, got %+v", got)
	}
}

func TestAffordancesCreateOnlyViewer(t *testing.T) {
	gate := NewGate([]Capabilities{{ProjectID: "p1", CanCreateUsers: true}})
	got := gate.Affordances("p1")
	if !got.EditMembers {
		t.Fatal("Edit Members should be visible with can_create_users")
	}
	if got.RemoveMember {
		t.Fatal("Remove member should be hidden without can_edit_users or can_manage_project")
	}
	if !gate.CanAnywhere(ActionCreateUser) {
		t.Fatal("expected user provisioning to be allowed")
	}
}
