package usage

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		hints Hints
		want  Context
	}{
		{"no hints", Hints{}, General},
		{"ascii keyboard", Hints{Keyboard: KeyboardASCIICapable}, IDE},
		{"url keyboard", Hints{Keyboard: KeyboardURL}, IDE},
		{"url keyboard beats send", Hints{Keyboard: KeyboardURL, ReturnKey: ReturnSend}, IDE},
		{"email keyboard", Hints{Keyboard: KeyboardEmailAddress}, Communication},
		{"email content type", Hints{ContentType: ContentEmailAddress}, Communication},
		{"username content type", Hints{ContentType: ContentUsername}, Communication},
		{"url content type", Hints{ContentType: ContentURL}, Communication},
		{"search return key", Hints{ReturnKey: ReturnSearch}, General},
		{"google return key", Hints{ReturnKey: ReturnGoogle}, General},
		{"go return key", Hints{ReturnKey: ReturnGo}, General},
		{"search beats send ordering", Hints{ReturnKey: ReturnSearch, ContentType: ContentName}, General},
		{"send return key", Hints{ReturnKey: ReturnSend}, Communication},
		{"default keyboard done", Hints{Keyboard: KeyboardDefault, ReturnKey: ReturnDone}, General},
		{"number pad", Hints{Keyboard: KeyboardNumberPad}, General},
		{"unknown values", Hints{Keyboard: "hologram", ReturnKey: "launch", ContentType: "dna"}, General},
		{"known ide app", Hints{AppID: "com.apple.dt.Xcode"}, IDE},
		{"known writing app", Hints{AppID: "md.obsidian", ReturnKey: ReturnSend}, Writing},
		{"known messaging app", Hints{AppID: "com.slack.Slack"}, Communication},
		{"unknown app falls through", Hints{AppID: "com.example.unknown", Keyboard: KeyboardURL}, IDE},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.hints); got != tc.want {
				t.Errorf("Classify(%+v) = %q, want %q", tc.hints, got, tc.want)
			}
		})
	}
}

// TestClassify_AlwaysValid checks that the classifier is total: every
// combination of known trait values yields a recognised context.
func TestClassify_AlwaysValid(t *testing.T) {
	t.Parallel()

	keyboards := []KeyboardType{"", KeyboardDefault, KeyboardASCIICapable, KeyboardURL, KeyboardEmailAddress, KeyboardNumberPad, KeyboardPhonePad, KeyboardTwitter, KeyboardWebSearch}
	returns := []ReturnKeyType{"", ReturnDefault, ReturnGo, ReturnGoogle, ReturnSearch, ReturnSend, ReturnDone, ReturnNext}
	contents := []ContentType{ContentNone, ContentEmailAddress, ContentUsername, ContentURL, ContentName, ContentPassword}

	for _, k := range keyboards {
		for _, r := range returns {
			for _, c := range contents {
				got := Classify(Hints{Keyboard: k, ReturnKey: r, ContentType: c})
				if !got.IsValid() {
					t.Fatalf("Classify(%q, %q, %q) = %q, not a valid context", k, r, c, got)
				}
			}
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, c := range All() {
		got, err := Parse(string(c))
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if got != c {
			t.Errorf("Parse(%q) = %q", c, got)
		}
	}

	if got, err := Parse(""); err != nil || got != General {
		t.Errorf("Parse(\"\") = %q, %v; want general, nil", got, err)
	}
	if _, err := Parse("spreadsheet"); err == nil {
		t.Error("Parse(spreadsheet): expected error")
	}
}
