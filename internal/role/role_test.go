package role

import "testing"

func TestHasAtLeastLattice(t *testing.T) {
	if !HasAtLeast(Owner, Admin) {
		t.Error("OWNER should outrank ADMIN")
	}
	if HasAtLeast(Voice, Op) {
		t.Error("VOICE should not satisfy OP")
	}
	if HasAtLeast(Member, Member) == false {
		t.Error("MEMBER should satisfy MEMBER")
	}
}

func TestHasAtLeastUnknownNeverSatisfies(t *testing.T) {
	if HasAtLeast(Unknown, Member) {
		t.Error("Unknown must never satisfy a minimum, even MEMBER")
	}
	if HasAtLeast(Owner, Unknown) {
		t.Error("a Role must never satisfy an Unknown minimum")
	}
}

func TestParseRoleRoundTrip(t *testing.T) {
	for _, r := range []Role{Member, Voice, Op, Admin, Owner} {
		if got := ParseRole(r.String()); got != r {
			t.Errorf("ParseRole(%q) = %v, want %v", r.String(), got, r)
		}
	}
	if got := ParseRole("bogus"); got != Unknown {
		t.Errorf("ParseRole(bogus) = %v, want Unknown", got)
	}
}

func TestFromModeCommand(t *testing.T) {
	cases := map[string]Role{"op": Op, "deop": Member, "voice": Voice, "devoice": Member}
	for cmd, want := range cases {
		got, ok := FromModeCommand(cmd)
		if !ok || got != want {
			t.Errorf("FromModeCommand(%q) = %v,%v want %v,true", cmd, got, ok, want)
		}
	}
	if _, ok := FromModeCommand("ban"); ok {
		t.Error("FromModeCommand(ban) should not be a role-assigning command")
	}
}
