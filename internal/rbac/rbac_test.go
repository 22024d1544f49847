package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer run", role: RoleViewer, action: ActionRun, allow: false},
		{name: "viewer admin", role: RoleViewer, action: ActionAdmin, allow: false},
		{name: "operator read", role: RoleOperator, action: ActionRead, allow: true},
		{name: "operator run", role: RoleOperator, action: ActionRun, allow: true},
		{name: "operator admin", role: RoleOperator, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]Role{
		"viewer":   RoleViewer,
		"operator": RoleOperator,
		"admin":    RoleAdmin,
		"editor":   RoleViewer,
		"":         RoleViewer,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
