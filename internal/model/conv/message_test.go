package conv

import "testing"

func TestStripMarkers(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[emo:happy]I am glad to see you", "I am glad to see you"},
		{"start [emo:sad] middle [emo:wink] end", "start  middle  end"},
		{"no markers here", "no markers here"},
		{"[emo:]", ""},
		{"[emo:unclosed", "[emo:unclosed"},
	}
	for _, tc := range cases {
		if got := StripMarkers(tc.in); got != tc.want {
			t.Errorf("StripMarkers(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAgent, RoleSystem} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("narrator").Valid() {
		t.Error("unknown role should be invalid")
	}
}
