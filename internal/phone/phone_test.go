package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+201234567890", "+201234567890"},
		{"+20 123 456 7890", "+201234567890"},
		{"00201234567890", "+201234567890"},
		{"01234567890", "+201234567890"},
		{"201234567890", "+201234567890"},
		{"(012) 345-67890", "+201234567890"},
		{"  ", ""},
		{"12+34", "+1234"},
	}

	for _, c := range cases {
		if got := Normalize(c.in, "20"); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeWithoutDefaultCountry(t *testing.T) {
	if got := Normalize("01234567890", ""); got != "+01234567890" {
		t.Fatalf("got %q", got)
	}
	if Valid(Normalize("01234567890", "")) {
		t.Fatal("number with leading zero country code must not validate")
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("abc", "20"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Parse("+2012", "20"); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for short number, got %v", err)
	}

	got, err := Parse("0123 456 7890", "+20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+201234567890" {
		t.Fatalf("got %q", got)
	}
}
