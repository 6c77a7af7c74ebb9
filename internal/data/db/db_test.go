package db

import "testing"

func TestSQLiteDSN(t *testing.T) {
	cases := []struct{ in, want string }{
		{"studyquiz.db", "studyquiz.db?_foreign_keys=on"},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_foreign_keys=on"},
		{"file:y?_foreign_keys=off", "file:y?_foreign_keys=off"},
	}
	for _, c := range cases {
		if got := SQLiteDSN(c.in); got != c.want {
			t.Fatalf("SQLiteDSN(%q): want=%q got=%q", c.in, c.want, got)
		}
	}
}
